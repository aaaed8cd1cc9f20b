// Package progress draws terminal progress bars for the long sequential
// loops (fetch, geocode, verify, provinces).
package progress

import (
	"io"

	"github.com/cheggaaa/pb/v3"
)

// Bar is the part of a progress bar the phases use.
type Bar interface {
	Increment()
	Finish()
}

// Factory starts a bar for total units of work.
type Factory func(total int, prefix string) Bar

// Terminal returns a Factory drawing pb bars on w.
func Terminal(w io.Writer) Factory {
	return func(total int, prefix string) Bar {
		bar := pb.Full.New(total)
		bar.SetWriter(w)
		bar.Set("prefix", prefix)
		bar.Set(pb.CleanOnFinish, true)
		return &pbBar{bar: bar.Start()}
	}
}

// None returns a Factory whose bars do nothing.
func None() Factory {
	return func(int, string) Bar { return nop{} }
}

// Start calls f, falling back to a no-op bar when f is nil.
func Start(f Factory, total int, prefix string) Bar {
	if f == nil {
		return nop{}
	}
	return f(total, prefix)
}

type pbBar struct {
	bar *pb.ProgressBar
}

func (b *pbBar) Increment() { b.bar.Increment() }

func (b *pbBar) Finish() { b.bar.Finish() }

type nop struct{}

func (nop) Increment() {}

func (nop) Finish() {}
