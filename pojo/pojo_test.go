package pojo

import (
	"context"
	"sort"
	"testing"

	"github.com/hatlonely/dbq/compiler"
	"github.com/hatlonely/dbq/conn"
	"github.com/hatlonely/dbq/executor"
	"github.com/hatlonely/dbq/log"
	"github.com/hatlonely/dbq/meta"
	"github.com/hatlonely/dbq/security"
	"github.com/hatlonely/dbq/uid/intgen"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type Department struct {
	meta.Table `rdb:"DEPARTMENT,alias=d,schema=hr"`
	ID         int64       `rdb:"ID,id"`
	Name       string      `rdb:"NAME"`
	Employees  []*Employee `rdb:"join,on=ID:DeptId"`
}

type Project struct {
	meta.Table `rdb:"PROJECT,alias=p,schema=hr"`
	ID         int64  `rdb:"ID,id"`
	Title      string `rdb:"TITLE"`
}

type EmpProject struct {
	meta.Table `rdb:"EMP_PROJECT,alias=ep,schema=hr"`
	EmpID      int64 `rdb:"EMP_ID"`
	ProjectID  int64 `rdb:"PROJECT_ID"`
}

type Employee struct {
	meta.Table `rdb:"EMPLOYEE,alias=e,schema=hr" sec:"everyone=00,admin=11"`
	ID         int64              `rdb:"ID,seq=EMP_SEQ" sec:"everyone=100"`
	Name       string             `rdb:"NAME" sec:"everyone=100,admin=111"`
	DeptId     int64              `rdb:"DEPT_ID" sec:"everyone=100,admin=111"`
	Active     bool               `rdb:"ACTIVE" sec:"admin=111"`
	Photo      []byte             `rdb:"PHOTO" sec:"admin=111"`
	Dept       *Department        `rdb:"join,on=DeptId:ID"`
	Projects   []Project          `rdb:"join,link=EmpProject,on=ID:EmpID,via=ProjectID:ID,set"`
	ProjectMap map[int64]*Project `rdb:"join,link=EmpProject,on=ID:EmpID,via=ProjectID:ID"`
}

var schemaDDL = []string{
	"CREATE TABLE DEPARTMENT (ID INTEGER PRIMARY KEY AUTOINCREMENT, NAME TEXT)",
	"CREATE TABLE EMPLOYEE (ID INTEGER PRIMARY KEY AUTOINCREMENT, NAME TEXT, DEPT_ID INTEGER, ACTIVE TEXT, PHOTO BLOB)",
	"CREATE TABLE PROJECT (ID INTEGER PRIMARY KEY, TITLE TEXT)",
	"CREATE TABLE EMP_PROJECT (EMP_ID INTEGER, PROJECT_ID INTEGER)",
	"INSERT INTO DEPARTMENT (NAME) VALUES ('IT'), ('HR')",
	"INSERT INTO EMPLOYEE (NAME, DEPT_ID, ACTIVE, PHOTO) VALUES ('bob', 1, 'Y', x'0102'), ('alice', 1, 'N', NULL), ('carol', 2, 'Y', NULL)",
	"INSERT INTO PROJECT (ID, TITLE) VALUES (1, 'dbq'), (2, 'web')",
	"INSERT INTO EMP_PROJECT (EMP_ID, PROJECT_ID) VALUES (1, 1), (1, 2), (1, 1), (2, 2)",
}

// newTestEnv 单连接的 sqlite 内存库，所有语句共享同一个数据库
func newTestEnv() (*conn.Registry, *meta.Registry) {
	pools, err := conn.NewRegistryWithOptions(&conn.Options{
		Schemas: map[string]*conn.SchemaOptions{
			"hr": {Driver: "sqlite3", Database: ":memory:", MaxConns: 1, MaxIdle: 1},
		},
	})
	So(err, ShouldBeNil)
	sqlDB, err := pools.DB("hr")
	So(err, ShouldBeNil)
	for _, ddl := range schemaDDL {
		_, err := sqlDB.Exec(ddl)
		So(err, ShouldBeNil)
	}

	registry := meta.NewRegistry()
	registry.MustRegister(EmpProject{})
	registry.MustRegister(Employee{})
	return pools, registry
}

func names(emps []*Employee) []string {
	var out []string
	for _, e := range emps {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

func TestQuery(t *testing.T) {
	Convey("测试查询", t, func() {
		pools, registry := newTestEnv()
		Reset(func() { _ = pools.Close() })
		db := New(registry, pools, WithLogger(log.Nop()), WithSecurityDisabled())
		ctx := context.Background()

		Convey("关联条件和投影", func() {
			emps, err := From[Employee](db, "select name, dept.name where dept.name='IT' order by name").List(ctx)
			So(err, ShouldBeNil)
			So(len(emps), ShouldEqual, 2)
			So(emps[0].Name, ShouldEqual, "alice")
			So(emps[1].Name, ShouldEqual, "bob")
			So(emps[1].Dept, ShouldNotBeNil)
			So(emps[1].Dept.Name, ShouldEqual, "IT")
			So(emps[1].ID, ShouldEqual, 0)
		})

		Convey("选择列表中的别名", func() {
			bob, err := From[Employee](db, "select name as n, deptId as d where name = 'bob'").Single(ctx)
			So(err, ShouldBeNil)
			So(bob.Name, ShouldEqual, "bob")
			So(bob.DeptId, ShouldEqual, 1)
			So(bob.ID, ShouldEqual, 0)
		})

		Convey("select * 映射全部列", func() {
			bob, err := From[Employee](db, "where name = ?", "bob").Single(ctx)
			So(err, ShouldBeNil)
			So(bob.ID, ShouldEqual, 1)
			So(bob.DeptId, ShouldEqual, 1)
			So(bob.Active, ShouldBeTrue)
			So(bob.Photo, ShouldResemble, []byte{1, 2})
			So(bob.Dept, ShouldBeNil)

			_, err = From[Employee](db, "where name = 'nobody'").Single(ctx)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("分页", func() {
			emps, err := From[Employee](db, "where id > 0 order by id limit(2,2)").List(ctx)
			So(err, ShouldBeNil)
			So(len(emps), ShouldEqual, 1)
			So(emps[0].Name, ShouldEqual, "carol")

			emps, err = From[Employee](db, "order by id limit(1,2)").List(ctx)
			So(err, ShouldBeNil)
			So(names(emps), ShouldResemble, []string{"alice", "bob"})
		})

		Convey("命名参数", func() {
			emp, err := From[Employee](db, "where name = :name or dept.name = :name").Set("name", "carol").Single(ctx)
			So(err, ShouldBeNil)
			So(emp.ID, ShouldEqual, 3)

			_, err = From[Employee](db, "where name = :name").Set("nick", "x").List(ctx)
			So(errors.Is(err, executor.ErrParamNotFound), ShouldBeTrue)

			_, err = From[Employee](db, "where name = :name").List(ctx)
			So(errors.Is(err, executor.ErrUnboundParam), ShouldBeTrue)
		})

		Convey("计数和映射", func() {
			n, err := From[Employee](db, "where dept.name = ? order by name limit(1,1)", "IT").Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			m, err := From[Employee](db, "").Map(ctx, "name")
			So(err, ShouldBeNil)
			So(len(m), ShouldEqual, 3)
			So(m["carol"].DeptId, ShouldEqual, 2)

			_, err = From[Employee](db, "").Map(ctx, "salary")
			So(errors.Is(err, compiler.ErrInvalidFragment), ShouldBeTrue)
		})

		Convey("按样例查询", func() {
			emps, err := Of(db, &Employee{DeptId: 1}).Where("order by name").List(ctx)
			So(err, ShouldBeNil)
			So(names(emps), ShouldResemble, []string{"alice", "bob"})

			_, err = Of(db, &Employee{}).List(ctx)
			So(errors.Is(err, compiler.ErrNoQueryableFields), ShouldBeTrue)

			compiled, err := Of(db, &Employee{Name: "bob"}).Compile()
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEndWith, "where e.NAME=?")
		})

		Convey("非法片段", func() {
			_, err := From[Employee](db, "where dept.salary > 0").List(ctx)
			So(errors.Is(err, compiler.ErrInvalidFragment), ShouldBeTrue)
			_, err = From[Employee](db, "limit(0,10)").List(ctx)
			So(errors.Is(err, compiler.ErrInvalidFragment), ShouldBeTrue)
		})
	})
}

func TestJoinPopulation(t *testing.T) {
	Convey("测试关联字段填充", t, func() {
		pools, registry := newTestEnv()
		Reset(func() { _ = pools.Close() })
		db := New(registry, pools, WithLogger(log.Nop()), WithSecurityDisabled())
		ctx := context.Background()

		Convey("一对一和中间表关联", func() {
			bob, err := From[Employee](db, "select dept, projects, projectMap where name = 'bob'").Single(ctx)
			So(err, ShouldBeNil)
			So(bob.Name, ShouldEqual, "bob")
			So(bob.Dept, ShouldNotBeNil)
			So(bob.Dept.Name, ShouldEqual, "IT")

			So(len(bob.Projects), ShouldEqual, 2)
			titles := []string{bob.Projects[0].Title, bob.Projects[1].Title}
			sort.Strings(titles)
			So(titles, ShouldResemble, []string{"dbq", "web"})

			So(len(bob.ProjectMap), ShouldEqual, 2)
			So(bob.ProjectMap[2].Title, ShouldEqual, "web")
		})

		Convey("一对多和嵌套关联", func() {
			it, err := From[Department](db, "select employees.dept where name = 'IT'").Single(ctx)
			So(err, ShouldBeNil)
			So(names(it.Employees), ShouldResemble, []string{"alice", "bob"})
			for _, e := range it.Employees {
				So(e.Dept, ShouldNotBeNil)
				So(e.Dept.ID, ShouldEqual, it.ID)
			}

			hr, err := From[Department](db, "select employees where name = 'HR'").Single(ctx)
			So(err, ShouldBeNil)
			So(names(hr.Employees), ShouldResemble, []string{"carol"})
		})

		Convey("选择列表中没有关联列", func() {
			bob, err := From[Employee](db, "select name, dept where name = 'bob'").Single(ctx)
			So(err, ShouldBeNil)
			So(bob.DeptId, ShouldEqual, 1)
			So(bob.Dept, ShouldNotBeNil)
			So(bob.Dept.Name, ShouldEqual, "IT")

			alice, err := From[Employee](db, "select name, projects where name = 'alice'").Single(ctx)
			So(err, ShouldBeNil)
			So(len(alice.Projects), ShouldEqual, 1)
			So(alice.Projects[0].Title, ShouldEqual, "web")
		})

		Convey("没有关联数据", func() {
			carol, err := From[Employee](db, "select projects, projectMap where name = 'carol'").Single(ctx)
			So(err, ShouldBeNil)
			So(carol.Projects, ShouldBeEmpty)
			So(carol.ProjectMap, ShouldBeEmpty)
		})
	})
}

func TestModify(t *testing.T) {
	Convey("测试插入更新删除", t, func() {
		pools, registry := newTestEnv()
		Reset(func() { _ = pools.Close() })
		db := New(registry, pools, WithLogger(log.Nop()), WithSecurityDisabled())
		ctx := context.Background()

		Convey("插入后写回标识", func() {
			dave := &Employee{Name: "dave", DeptId: 2, Active: true, Photo: []byte("x")}
			So(Of(db, dave).Insert(ctx), ShouldBeNil)
			So(dave.ID, ShouldEqual, 4)

			qa := &Department{Name: "QA"}
			So(Of(db, qa).Insert(ctx), ShouldBeNil)
			So(qa.ID, ShouldEqual, 3)

			got, err := From[Employee](db, "where id = ?", dave.ID).Single(ctx)
			So(err, ShouldBeNil)
			So(got.Active, ShouldBeTrue)
			So(got.Photo, ShouldResemble, []byte("x"))

			err = Of(db, &Department{}).Insert(ctx)
			So(errors.Is(err, compiler.ErrNothingToInsert), ShouldBeTrue)
		})

		Convey("序列生成器", func() {
			db := New(registry, pools, WithLogger(log.Nop()), WithSecurityDisabled(),
				WithGenerator("EMP_SEQ", intgen.NewLocalSequence(&intgen.LocalSequenceOptions{Start: 100})))
			erin := &Employee{Name: "erin"}
			So(Of(db, erin).Insert(ctx), ShouldBeNil)
			So(erin.ID, ShouldEqual, 100)

			frank := &Employee{Name: "frank"}
			So(Of(db, frank).Insert(ctx), ShouldBeNil)
			So(frank.ID, ShouldEqual, 101)
		})

		Convey("更新", func() {
			bob, err := From[Employee](db, "where name = 'bob'").Single(ctx)
			So(err, ShouldBeNil)

			bob.Name = "robert"
			bob.DeptId = 2
			n, err := Of(db, bob).Update(ctx, "name")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			got, _ := From[Employee](db, "where id = 1").Single(ctx)
			So(got.Name, ShouldEqual, "robert")
			So(got.DeptId, ShouldEqual, 1)

			n, err = Of(db, &Employee{ID: 1, DeptId: 2}).UpdateIgnoreNulls(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			got, _ = From[Employee](db, "where id = 1").Single(ctx)
			So(got.Name, ShouldEqual, "robert")
			So(got.DeptId, ShouldEqual, 2)
			So(got.Photo, ShouldResemble, []byte{1, 2})

			n, err = Of(db, &Employee{Active: true}).Where("where deptId = ?", 1).Update(ctx, "active")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			alice, _ := From[Employee](db, "where name = 'alice'").Single(ctx)
			So(alice.Active, ShouldBeTrue)
		})

		Convey("删除", func() {
			n, err := Of(db, &Employee{ID: 3}).Delete(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			n, err = From[EmpProject](db, "where empID = ?", 1).Delete(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			_, err = From[EmpProject](db, "").Delete(ctx)
			So(errors.Is(err, compiler.ErrInvalidFragment), ShouldBeTrue)

			count, err := From[Employee](db, "").Count(ctx)
			So(err, ShouldBeNil)
			So(count, ShouldEqual, 2)
		})

		Convey("事务", func() {
			boom := errors.New("boom")
			err := db.Transaction(ctx, "hr", func(tx *DB) error {
				if err := Of(tx, &Employee{Name: "ghost"}).Insert(ctx); err != nil {
					return err
				}
				n, err := From[Employee](tx, "").Count(ctx)
				So(n, ShouldEqual, 4)
				So(err, ShouldBeNil)
				return boom
			})
			So(err, ShouldEqual, boom)

			n, err := From[Employee](db, "").Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			err = db.Transaction(ctx, "hr", func(tx *DB) error {
				return tx.Transaction(ctx, "hr", func(tx *DB) error {
					return Of(tx, &Employee{Name: "henry"}).Insert(ctx)
				})
			})
			So(err, ShouldBeNil)
			n, _ = From[Employee](db, "").Count(ctx)
			So(n, ShouldEqual, 4)

			So(func() {
				_ = db.Transaction(ctx, "hr", func(tx *DB) error {
					_ = Of(tx, &Employee{Name: "ivan"}).Insert(ctx)
					panic("abort")
				})
			}, ShouldPanic)
			n, _ = From[Employee](db, "").Count(ctx)
			So(n, ShouldEqual, 4)

			err = db.Transaction(ctx, "crm", func(tx *DB) error { return nil })
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSecurity(t *testing.T) {
	Convey("测试权限", t, func() {
		pools, registry := newTestEnv()
		Reset(func() { _ = pools.Close() })
		db := New(registry, pools, WithLogger(log.Nop()))
		ctx := context.Background()
		admin := security.Groups{"admin"}

		Convey("select * 只包含有权限的列", func() {
			compiled, err := From[Employee](db, "").Compile()
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldStartWith, "select e.ID, e.NAME, e.DEPT_ID\n")

			compiled, err = From[Employee](db, "").WithPrincipal(admin).Compile()
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldStartWith, "select e.ID, e.NAME, e.DEPT_ID, e.ACTIVE\n")

			bob, err := From[Employee](db, "where name = 'bob'").WithPrincipal(admin).Single(ctx)
			So(err, ShouldBeNil)
			So(bob.Photo, ShouldResemble, []byte{1, 2})

			emps, err := From[Employee](db, "where name = 'bob'").WithPrincipal(admin).List(ctx)
			So(err, ShouldBeNil)
			So(emps[0].Photo, ShouldBeNil)
		})

		Convey("没有权限", func() {
			_, err := From[Department](db, "").List(ctx)
			So(errors.Is(err, compiler.ErrAccessDenied), ShouldBeTrue)

			_, err = From[Employee](db, "select active").List(ctx)
			So(errors.Is(err, compiler.ErrAccessDenied), ShouldBeTrue)

			err = Of(db, &Employee{Name: "eve"}).Insert(ctx)
			So(errors.Is(err, compiler.ErrAccessDenied), ShouldBeTrue)

			_, err = Of(db, &Employee{ID: 1, Name: "eve"}).Update(ctx)
			So(errors.Is(err, compiler.ErrUpdateDenied), ShouldBeTrue)

			_, err = Of(db, &Employee{ID: 1}).Delete(ctx)
			So(errors.Is(err, compiler.ErrAccessDenied), ShouldBeTrue)

			depts, err := From[Department](db, "").DisableSecurity().List(ctx)
			So(err, ShouldBeNil)
			So(len(depts), ShouldEqual, 2)
		})

		Convey("管理员可以修改", func() {
			eve := &Employee{Name: "eve", DeptId: 2, Active: true}
			So(Of(db, eve).WithPrincipal(admin).Insert(ctx), ShouldBeNil)
			So(eve.ID, ShouldEqual, 4)

			n, err := Of(db, &Employee{ID: 4, Name: "eva"}).WithPrincipal(admin).Update(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			n, err = Of(db, &Employee{ID: 4}).WithPrincipal(admin).Delete(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("字段描述", func() {
			fields := From[Employee](db, "").Fields()
			So(fields[1].Name, ShouldEqual, "name")
			So(fields[1].Column, ShouldEqual, "NAME")
			So(fields[1].Rights, ShouldEqual, "10000")
			So(fields[0].Identity, ShouldBeTrue)
			So(fields[0].Sequence, ShouldEqual, "EMP_SEQ")

			fields = From[Employee](db, "").WithPrincipal(admin).Fields()
			So(fields[1].Rights, ShouldEqual, "11111")
			So(fields[3].Rights, ShouldEqual, "11111")
			So(fields[5].Join, ShouldBeTrue)
			So(fields[5].Name, ShouldEqual, "dept")
			So(fields[5].Target, ShouldEqual, "Department")
			So(fields[6].Cardinality, ShouldEqual, meta.Set)
		})
	})
}

func TestTable(t *testing.T) {
	Convey("测试声明式实体", t, func() {
		pools, registry := newTestEnv()
		Reset(func() { _ = pools.Close() })
		_, err := registry.RegisterOptions(&meta.EntityOptions{
			Name:   "Staff",
			Table:  "EMPLOYEE",
			Alias:  "s",
			Schema: "hr",
			Columns: []meta.ColumnOptions{
				{Field: "id", Column: "ID", Type: "long", Identity: true},
				{Field: "name", Column: "NAME"},
				{Field: "deptId", Column: "DEPT_ID", Type: "long"},
			},
			Joins: []meta.JoinOptions{
				{Field: "dept", Target: "Department", On: []string{"deptId:ID"}},
			},
		})
		So(err, ShouldBeNil)
		db := New(registry, pools, WithLogger(log.Nop()), WithSecurityDisabled())
		ctx := context.Background()

		Convey("查询结果为 map", func() {
			rows, err := db.Table("Staff").Where("select name, dept.name where dept.name = ? order by name", "IT").List(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			alice := rows[0].(meta.MapValues)
			So(alice["name"], ShouldEqual, "alice")
			So(alice["dept"].(meta.MapValues)["name"], ShouldEqual, "IT")

			rows, err = db.Table("Staff").Where("select dept where name = 'carol'").List(ctx)
			So(err, ShouldBeNil)
			So(rows[0].(meta.MapValues)["dept"].(*Department).Name, ShouldEqual, "HR")
		})

		Convey("游标", func() {
			cur, err := db.Table("Staff").Where("select id, name order by id").Cursor(ctx)
			So(err, ShouldBeNil)
			So(cur.Len(), ShouldEqual, 3)
			So(cur.Next(), ShouldBeTrue)
			name, err := cur.GetString("name")
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "bob")
		})

		Convey("插入和删除", func() {
			row := meta.MapValues{"name": "zoe", "deptId": int64(2)}
			So(db.Table("Staff").Insert(ctx, row), ShouldBeNil)
			So(row["id"], ShouldEqual, int64(4))

			n, err := db.Table("Staff").Where("where deptId = ?", 2).Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			n, err = db.Table("Staff").Delete(ctx, row)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("未注册的实体", func() {
			_, err := db.Table("Nobody").List(ctx)
			So(errors.Is(err, meta.ErrEntityNotFound), ShouldBeTrue)
			So(db.Table("Nobody").Fields(), ShouldBeNil)
		})
	})
}
