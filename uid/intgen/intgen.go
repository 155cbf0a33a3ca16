package intgen

import "github.com/hatlonely/dbq/ref"

func init() {
	ref.MustRegisterT[LocalSequence](NewLocalSequence)
	ref.MustRegisterT[Snowflake](NewSnowflakeWithOptions)
	ref.MustRegisterT[RedisSequence](NewRedisSequenceWithOptions)
}
