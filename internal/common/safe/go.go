package safe

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/pkg/errors"
)

//be safe, don't panic

func Run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_, _ = fmt.Fprintf(os.Stderr, "panic: %#v\n", r)
			debug.PrintStack()
			switch x := r.(type) {
			case error:
				err = x
			default:
				err = fmt.Errorf("%#v", x)
			}
		}
	}()
	err = fn()
	return err
}

func Go(fn func() error) chan error {
	c := make(chan error)
	go func() {
		c <- Run(fn)
		close(c)
	}()
	return c
}

func GoChannel(fn func() error, message string, errorChan chan<- error) {
	go func() {
		if err := Run(fn); err != nil {
			errorChan <- errors.WithMessage(err, message)
		}
	}()
}
