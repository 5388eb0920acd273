package gosmr

import "fmt"

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}

func alignup(value, align int64) int64 {
	if mod := value % align; mod != 0 {
		value += align - mod
	}
	return value
}
