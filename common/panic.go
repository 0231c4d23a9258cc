package common

import (
	"fmt"
	"os"
	"runtime/debug"
)

func StrataPanicHandler() {
	if r := recover(); r != nil {
		fmt.Printf("Panic caught in Strata: %v\n", r)
		debug.PrintStack()
		os.Exit(1)
	}
}
