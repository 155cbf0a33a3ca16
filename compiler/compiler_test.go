package compiler

import (
	"testing"

	"github.com/hatlonely/dbq/dialect"
	"github.com/hatlonely/dbq/meta"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type Department struct {
	meta.Table `rdb:"DEPARTMENT,alias=d"`
	ID         int64  `rdb:"ID,id"`
	Name       string `rdb:"NAME"`
}

type Project struct {
	meta.Table `rdb:"PROJECT,alias=p"`
	ID         int64  `rdb:"ID,id" sec:"everyone=100"`
	Title      string `rdb:"TITLE" sec:"everyone=100"`
}

type EmpProject struct {
	meta.Table `rdb:"EMP_PROJECT,alias=ep"`
	EmpID      int64 `rdb:"EMP_ID"`
	ProjectID  int64 `rdb:"PROJECT_ID"`
}

type Employee struct {
	meta.Table `rdb:"EMPLOYEE,alias=e" sec:"everyone=00,admin=11"`
	ID         int64       `rdb:"ID,seq=EMP_SEQ" sec:"everyone=100"`
	Name       string      `rdb:"NAME" sec:"everyone=100,admin=111"`
	DeptId     int64       `rdb:"DEPT_ID" sec:"everyone=100,admin=111"`
	Photo      []byte      `rdb:"PHOTO" sec:"everyone=100"`
	Dept       *Department `rdb:"join,on=DeptId:ID"`
	Projects   []Project   `rdb:"join,link=EmpProject,on=ID:EmpID,via=ProjectID:ID"`
}

type Transfer struct {
	meta.Table `rdb:"TRANSFER,alias=t"`
	ID         int64       `rdb:"ID,id"`
	FromId     int64       `rdb:"FROM_ID"`
	ToId       int64       `rdb:"TO_ID"`
	From       *Department `rdb:"join,on=FromId:ID"`
	To         *Department `rdb:"join,on=ToId:ID"`
}

type Badge struct {
	meta.Table `rdb:"BADGE,alias=b"`
	ID         int64     `rdb:"ID,id" sec:"everyone=100"`
	Label      string    `rdb:"LABEL" sec:"everyone=100"`
	EmpID      int64     `rdb:"EMP_ID" sec:"admin=100"`
	Owner      *Employee `rdb:"join,on=EmpID:ID"`
}

func newTestRegistry() *meta.Registry {
	r := meta.NewRegistry()
	r.MustRegister(Employee{})
	r.MustRegister(EmpProject{})
	r.MustRegister(Transfer{})
	return r
}

const employeeColumns = "select e.ID, e.NAME, e.DEPT_ID, e.PHOTO\nfrom EMPLOYEE e"

func TestSelectAll(t *testing.T) {
	Convey("测试 select *", t, func() {
		r := newTestRegistry()
		emp, _ := r.Entity("Employee")
		dept, _ := r.Entity("Department")
		c := New(dialect.NewSQLite())

		Convey("关闭权限检查时选择全部列", func() {
			for _, fragment := range []string{"", "select *", "select e.*", "  SELECT *  "} {
				compiled, err := c.Select(&Request{Entity: emp, Fragment: fragment})
				So(err, ShouldBeNil)
				So(compiled.SQL, ShouldEqual, employeeColumns)
				So(compiled.Columns, ShouldResemble, emp.Columns)
				So(compiled.Params, ShouldBeEmpty)
			}

			compiled, err := c.Select(&Request{Entity: dept, Security: security.Disabled()})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, "select d.ID, d.NAME\nfrom DEPARTMENT d")
		})

		Convey("没有 select 权限", func() {
			_, err := c.Select(&Request{Entity: dept, Fragment: "select *", Security: security.NewEvaluator(nil)})
			So(errors.Is(err, ErrAccessDenied), ShouldBeTrue)
		})

		Convey("开启权限检查时不包含大对象列", func() {
			ev := security.NewEvaluator(security.Groups{"staff"})
			compiled, err := c.Select(&Request{Entity: emp, Security: ev})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, "select e.ID, e.NAME, e.DEPT_ID\nfrom EMPLOYEE e")

			compiled, err = c.Select(&Request{Entity: emp, Security: ev, Blobs: true})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, employeeColumns)
		})
	})
}

func TestSelectFragment(t *testing.T) {
	Convey("测试查询片段", t, func() {
		r := newTestRegistry()
		emp, _ := r.Entity("Employee")
		c := New(dialect.NewSQLite())

		Convey("选择列表和关联条件", func() {
			compiled, err := c.Select(&Request{Entity: emp, Fragment: "select name, dept.name where dept.name='IT'"})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, "select e.NAME, d.NAME AS DEPT_NAME\n"+
				"from EMPLOYEE e\n"+
				"join DEPARTMENT d on e.DEPT_ID=d.ID\n"+
				"where d.NAME=?")
			So(compiled.Params, ShouldResemble, []any{"IT"})
			So(compiled.Columns, ShouldResemble, []*meta.Column{emp.Column("name")})
			So(len(compiled.Projections), ShouldEqual, 1)
			So(compiled.Projections[0].Label, ShouldEqual, "DEPT_NAME")
			So(compiled.Projections[0].Path[0], ShouldEqual, emp.Join("dept"))
		})

		Convey("投影使用调用方的别名", func() {
			compiled, err := c.Select(&Request{Entity: emp, Fragment: "select e.name, dept.name as dname"})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldStartWith, "select e.NAME, d.NAME as dname\n")
			So(compiled.Projections[0].Label, ShouldEqual, "DNAME")
			So(compiled.Label(emp.Column("name")), ShouldEqual, "NAME")

			compiled, err = c.Select(&Request{Entity: emp, Fragment: "select name as n, deptId where id = 1"})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldStartWith, "select e.NAME as n, e.DEPT_ID\n")
			So(compiled.Columns, ShouldResemble, []*meta.Column{emp.Column("name"), emp.Column("deptId")})
			So(compiled.Label(emp.Column("name")), ShouldEqual, "N")
			So(compiled.Label(emp.Column("deptId")), ShouldEqual, "DEPT_ID")
		})

		Convey("字面量和参数按出现顺序绑定", func() {
			compiled, err := c.Select(&Request{
				Entity:   emp,
				Fragment: "where name = ? and dept.name in ('A', 'it''s') or deptId = ? order by name desc, dept.name",
				Params:   []any{"bob", 3},
			})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, employeeColumns+"\n"+
				"join DEPARTMENT d on e.DEPT_ID=d.ID\n"+
				"where e.NAME = ? and d.NAME in (?, ?) or e.DEPT_ID = ?\n"+
				"order by e.NAME desc, d.NAME")
			So(compiled.Params, ShouldResemble, []any{"bob", "A", "it's", 3})
		})

		Convey("函数名和未知标识符保持不变", func() {
			compiled, err := c.Select(&Request{Entity: emp, Fragment: "where upper(name) like 'B%' and rownum_alias is not null"})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEndWith, "where upper(e.NAME) like ? and rownum_alias is not null")
		})

		Convey("通过中间表关联", func() {
			compiled, err := c.Select(&Request{Entity: emp, Fragment: "where projects.title = 'dbq' and projects.id > 1"})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, employeeColumns+"\n"+
				"join EMP_PROJECT ep on e.ID=ep.EMP_ID\n"+
				"join PROJECT p on ep.PROJECT_ID=p.ID\n"+
				"where p.TITLE = ? and p.ID > 1")
		})

		Convey("同一张表关联两次使用不同别名", func() {
			transfer, _ := r.Entity("Transfer")
			compiled, err := c.Select(&Request{Entity: transfer, Fragment: "where from.name = 'A' and to.name = 'B' and from.id > 0"})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, "select t.ID, t.FROM_ID, t.TO_ID\n"+
				"from TRANSFER t\n"+
				"join DEPARTMENT d on t.FROM_ID=d.ID\n"+
				"join DEPARTMENT d1 on t.TO_ID=d1.ID\n"+
				"where d.NAME = ? and d1.NAME = ? and d.ID > 0")
		})

		Convey("关联字段在查询后填充", func() {
			compiled, err := c.Select(&Request{Entity: emp, Fragment: "select name, projects, projects.title where id = 1"})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, "select e.NAME, e.ID\nfrom EMPLOYEE e\nwhere e.ID = 1")
			So(compiled.Columns, ShouldResemble, []*meta.Column{emp.Column("name"), emp.Column("id")})
			So(len(compiled.JoinFields), ShouldEqual, 2)
			So(compiled.JoinFields[0].Join, ShouldEqual, emp.Join("projects"))
			So(compiled.JoinFields[0].Rest, ShouldEqual, "")
			So(compiled.JoinFields[1].Rest, ShouldEqual, "title")

			compiled, err = c.Select(&Request{Entity: emp, Fragment: "select dept"})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, employeeColumns)
			So(compiled.JoinFields[0].Join, ShouldEqual, emp.Join("dept"))

			compiled, err = c.Select(&Request{Entity: emp, Fragment: "select name, dept, deptId"})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, "select e.NAME, e.DEPT_ID\nfrom EMPLOYEE e")
		})

		Convey("关联列没有查询权限", func() {
			r := meta.NewRegistry()
			badge := r.MustRegister(Badge{})

			_, err := c.Select(&Request{Entity: badge, Fragment: "select label, owner", Security: security.NewEvaluator(nil)})
			So(errors.Is(err, ErrAccessDenied), ShouldBeTrue)

			compiled, err := c.Select(&Request{Entity: badge, Fragment: "select label, owner", Security: security.NewEvaluator(security.Groups{"admin"})})
			So(err, ShouldBeNil)
			So(compiled.SQL, ShouldEqual, "select b.LABEL, b.EMP_ID\nfrom BADGE b")
		})

		Convey("非法片段", func() {
			for _, tt := range []struct {
				fragment string
				params   []any
			}{
				{"where dept.missing = 1", nil},
				{"where dept = 1", nil},
				{"where id = ?", nil},
				{"where id = 1", []any{1}},
				{"where (id = 1", nil},
				{"where", nil},
				{"limit(0,10)", nil},
				{"limit(1,-1)", nil},
				{"limit(a,b)", nil},
				{"limit(1,10) order by id", nil},
				{"limit(4611686018427387904,4)", nil},
			} {
				_, err := c.Select(&Request{Entity: emp, Fragment: tt.fragment, Params: tt.params})
				So(errors.Is(err, ErrInvalidFragment), ShouldBeTrue)
			}
		})
	})
}

func TestPagination(t *testing.T) {
	Convey("测试分页", t, func() {
		r := newTestRegistry()
		emp, _ := r.Entity("Employee")

		compiled, err := New(dialect.NewSQLite()).Select(&Request{Entity: emp, Fragment: "where id > 0 limit(2,10)"})
		So(err, ShouldBeNil)
		So(compiled.Params, ShouldResemble, []any{11, 20})
		So(compiled.SQL, ShouldEqual, "SELECT pq_outer.* FROM (SELECT ROW_NUMBER() OVER () AS rn, pq_inner.* FROM ("+
			employeeColumns+"\nwhere e.ID > 0"+
			") pq_inner) pq_outer WHERE pq_outer.rn >= ? AND pq_outer.rn <= ?")

		compiled, err = New(dialect.NewOracle()).Select(&Request{Entity: emp, Fragment: "where id > ? order by name limit(1, 5)", Params: []any{7}})
		So(err, ShouldBeNil)
		So(compiled.Params, ShouldResemble, []any{7, 1, 5})
		So(compiled.SQL, ShouldContainSubstring, "ROWNUM rn")
		So(compiled.SQL, ShouldContainSubstring, "order by e.NAME) pq_inner")
	})
}

func TestCount(t *testing.T) {
	Convey("测试计数", t, func() {
		r := newTestRegistry()
		emp, _ := r.Entity("Employee")

		compiled, err := New(dialect.NewSQLite()).Count(&Request{
			Entity:   emp,
			Fragment: "select name where dept.name = ? order by name limit(1,5)",
			Params:   []any{"IT"},
		})
		So(err, ShouldBeNil)
		So(compiled.SQL, ShouldEqual, "select count(*) as ct\n"+
			"from EMPLOYEE e\n"+
			"join DEPARTMENT d on e.DEPT_ID=d.ID\n"+
			"where d.NAME = ?")
		So(compiled.Params, ShouldResemble, []any{"IT"})
	})
}

func TestLinkFilter(t *testing.T) {
	Convey("测试中间表子查询", t, func() {
		r := newTestRegistry()
		emp, _ := r.Entity("Employee")
		project, _ := r.Entity("Project")
		c := New(dialect.NewSQLite())

		compiled, err := c.Select(&Request{
			Entity:   project,
			Fragment: "where title <> ?",
			Params:   []any{"x"},
			Link:     &LinkFilter{Owner: emp, Join: emp.Join("projects"), Values: []any{int64(1)}},
		})
		So(err, ShouldBeNil)
		So(compiled.SQL, ShouldEqual, "select p.ID, p.TITLE\n"+
			"from PROJECT p\n"+
			"join EMP_PROJECT ep on ep.PROJECT_ID=p.ID\n"+
			"where ep.EMP_ID=? and (p.TITLE <> ?)")
		So(compiled.Params, ShouldResemble, []any{int64(1), "x"})

		_, err = c.Select(&Request{
			Entity: project,
			Link:   &LinkFilter{Owner: emp, Join: emp.Join("dept"), Values: []any{int64(1)}},
		})
		So(errors.Is(err, ErrInvalidFragment), ShouldBeTrue)
	})
}
