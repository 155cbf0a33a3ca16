package meta

import (
	"reflect"
	"testing"

	"github.com/hatlonely/dbq/convert"
	"github.com/hatlonely/dbq/security"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type Department struct {
	Table `rdb:"DEPARTMENT,alias=d"`
	ID    int64  `rdb:"ID,id"`
	Name  string `rdb:"NAME"`
}

type Project struct {
	Table `rdb:"PROJECT,alias=p"`
	ID    int64  `rdb:"ID,id"`
	Title string `rdb:"TITLE"`
}

type EmpProject struct {
	Table     `rdb:"EMP_PROJECT,alias=ep"`
	EmpID     int64 `rdb:"EMP_ID"`
	ProjectID int64 `rdb:"PROJECT_ID"`
}

type Employee struct {
	Table    `rdb:"EMPLOYEE,alias=e,schema=hr" sec:"everyone=00,admin=11"`
	ID       int64      `rdb:"ID,seq=EMP_SEQ"`
	Name     string     `rdb:"NAME" sec:"everyone=100,admin=111"`
	DeptId   int64      `rdb:"DEPT_ID"`
	Photo    []byte     `rdb:"PHOTO"`
	Ignored  string     `rdb:"-"`
	Untagged string
	Dept     *Department `rdb:"join,on=DeptId:ID"`
	Projects []Project  `rdb:"join,link=EmpProject,on=ID:EmpID,via=ProjectID:ID,set"`
}

func TestRegister(t *testing.T) {
	Convey("测试从结构体标签注册实体", t, func() {
		r := NewRegistry()
		e, err := r.Register(&Employee{})
		So(err, ShouldBeNil)

		Convey("表信息", func() {
			So(e.Name, ShouldEqual, "Employee")
			So(e.Table, ShouldEqual, "EMPLOYEE")
			So(e.Alias, ShouldEqual, "e")
			So(e.Schema, ShouldEqual, "hr")
			So(e.Security, ShouldNotBeNil)
			So(security.NewEvaluator(security.Groups{"admin"}).CanDeleteRow(e.Security), ShouldBeTrue)
		})

		Convey("列信息", func() {
			So(len(e.Columns), ShouldEqual, 4)
			id := e.Column("id")
			So(id, ShouldNotBeNil)
			So(id.Name, ShouldEqual, "ID")
			So(id.Identity, ShouldBeTrue)
			So(id.Sequence, ShouldEqual, "EMP_SEQ")
			So(id.Kind, ShouldEqual, convert.Int64)

			So(e.Column("deptId").Name, ShouldEqual, "DEPT_ID")
			So(e.Column("DeptId"), ShouldEqual, e.Column("deptId"))
			So(e.Column("photo").Kind, ShouldEqual, convert.Bytes)
			So(e.Column("ignored"), ShouldBeNil)
			So(e.Column("untagged"), ShouldBeNil)
			So(e.Column("Deptid"), ShouldBeNil)

			So(len(e.Identities()), ShouldEqual, 1)
		})

		Convey("关联信息", func() {
			dept := e.Join("dept")
			So(dept, ShouldNotBeNil)
			So(dept.Cardinality, ShouldEqual, One)
			So(dept.Target, ShouldEqual, "Department")
			So(dept.On, ShouldResemble, []Pair{{Local: "DeptId", Foreign: "ID"}})

			target, err := e.Target(dept)
			So(err, ShouldBeNil)
			So(target.Alias, ShouldEqual, "d")

			projects := e.Join("projects")
			So(projects.Cardinality, ShouldEqual, Set)
			So(projects.Linked(), ShouldBeTrue)
			So(projects.LinkOn, ShouldResemble, []Pair{{Local: "ProjectID", Foreign: "ID"}})

			_, err = e.LinkEntity(projects)
			So(errors.Is(err, ErrEntityNotFound), ShouldBeTrue)

			_, err = r.Register(EmpProject{})
			So(err, ShouldBeNil)
			link, err := e.LinkEntity(projects)
			So(err, ShouldBeNil)
			So(link.Table, ShouldEqual, "EMP_PROJECT")
		})

		Convey("关联目标被一并注册", func() {
			d, err := r.EntityOf(reflect.TypeOf(Department{}))
			So(err, ShouldBeNil)
			So(d.Table, ShouldEqual, "DEPARTMENT")

			_, err = r.Entity("EmpProject")
			So(errors.Is(err, ErrEntityNotFound), ShouldBeTrue)
		})

		Convey("重复注册返回同一实体", func() {
			again, err := r.Register(Employee{})
			So(err, ShouldBeNil)
			So(again, ShouldEqual, e)
		})
	})
}

func TestRegisterErrors(t *testing.T) {
	Convey("测试注册失败", t, func() {
		r := NewRegistry()

		_, err := r.Register(42)
		So(err, ShouldNotBeNil)

		type NoColumns struct {
			Name string
		}
		_, err = r.Register(NoColumns{})
		So(err, ShouldNotBeNil)

		type BadJoin struct {
			ID   int64       `rdb:"ID"`
			Dept *Department `rdb:"join,on=Missing:ID"`
		}
		_, err = r.Register(BadJoin{})
		So(err, ShouldNotBeNil)

		type BadType struct {
			ID   int64          `rdb:"ID"`
			Tags map[string]int `rdb:"TAGS"`
		}
		_, err = r.Register(BadType{})
		So(err, ShouldNotBeNil)
	})
}

func TestRegisterOptions(t *testing.T) {
	Convey("测试注册声明式实体", t, func() {
		r := NewRegistry()
		_, err := r.RegisterOptions(&EntityOptions{
			Name:  "Department",
			Table: "DEPARTMENT",
			Alias: "d",
			Columns: []ColumnOptions{
				{Field: "id", Column: "ID", Type: "int64", Identity: true},
				{Field: "name", Column: "NAME"},
			},
		})
		So(err, ShouldBeNil)

		e, err := r.RegisterOptions(&EntityOptions{
			Name:     "Employee",
			Table:    "EMPLOYEE",
			Security: "everyone=10",
			Columns: []ColumnOptions{
				{Field: "id", Type: "long", Sequence: "EMP_SEQ"},
				{Field: "name", Security: "everyone=101"},
				{Field: "deptId"},
			},
			Joins: []JoinOptions{
				{Field: "dept", Target: "Department", On: []string{"deptId:id"}},
			},
		})
		So(err, ShouldBeNil)
		So(e.Alias, ShouldEqual, "Employee")
		So(e.Column("deptId").Name, ShouldEqual, "DEPT_ID")
		So(e.Column("id").Identity, ShouldBeTrue)
		So(e.Column("id").Kind, ShouldEqual, convert.Int64)
		So(e.Column("name").Security.Everyone, ShouldEqual, security.FieldSelect|security.FieldInsert)

		target, err := e.Target(e.Join("dept"))
		So(err, ShouldBeNil)
		So(target.Table, ShouldEqual, "DEPARTMENT")

		_, err = r.RegisterOptions(&EntityOptions{
			Name:    "Broken",
			Table:   "BROKEN",
			Columns: []ColumnOptions{{Field: "id", Type: "uuid"}},
		})
		So(err, ShouldNotBeNil)
	})
}

func TestValues(t *testing.T) {
	Convey("测试对象取值", t, func() {
		r := NewRegistry()
		e := r.MustRegister(Employee{})

		emp := &Employee{Name: "bob"}
		values, err := NewStructValues(emp)
		So(err, ShouldBeNil)

		v, ok := values.Value(e.Column("name"))
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, "bob")

		_, ok = values.Value(e.Column("id"))
		So(ok, ShouldBeFalse)

		So(values.Set(e.Column("id"), int32(9)), ShouldBeNil)
		So(emp.ID, ShouldEqual, 9)

		_, err = NewStructValues(Employee{})
		So(err, ShouldNotBeNil)

		m := MapValues{"name": "alice", "deptId": 0}
		_, ok = m.Value(e.Column("deptId"))
		So(ok, ShouldBeFalse)
		v, ok = m.Value(e.Column("name"))
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, "alice")

		So(m.Set(e.Column("id"), "12"), ShouldBeNil)
		So(m["id"], ShouldEqual, int64(12))
		So(m.Set(e.Column("name"), []byte("carol")), ShouldBeNil)
		So(m["name"], ShouldEqual, "carol")
		So(m.Set(e.Column("id"), "x"), ShouldNotBeNil)
	})
}

func TestNaming(t *testing.T) {
	Convey("测试命名转换", t, func() {
		So(lowerCamel("DeptID"), ShouldEqual, "deptID")
		So(lowerCamel("ID"), ShouldEqual, "id")
		So(lowerCamel("HTTPServer"), ShouldEqual, "httpServer")
		So(lowerCamel("Name"), ShouldEqual, "name")

		So(upperSnake("DeptId"), ShouldEqual, "DEPT_ID")
		So(upperSnake("HTTPServer"), ShouldEqual, "HTTP_SERVER")
		So(upperSnake("Employee"), ShouldEqual, "EMPLOYEE")
		So(upperSnake("deptId"), ShouldEqual, "DEPT_ID")
	})
}
