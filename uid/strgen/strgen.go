package strgen

import "github.com/hatlonely/dbq/ref"

func init() {
	ref.MustRegisterT[UUID](NewUUIDWithOptions)
}
