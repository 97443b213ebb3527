//go:build windows

package main

import (
	"os"

	"golang.org/x/sys/windows"
)

// enableVT switches the console to virtual terminal mode so the browser's
// ANSI sequences and arrow keys work. The returned func restores the
// previous console modes.
func enableVT() (restore func()) {
	hIn := windows.Handle(os.Stdin.Fd())
	hOut := windows.Handle(os.Stdout.Fd())

	var inMode, outMode uint32
	inOK := windows.GetConsoleMode(hIn, &inMode) == nil
	outOK := windows.GetConsoleMode(hOut, &outMode) == nil
	if inOK {
		windows.SetConsoleMode(hIn, inMode|windows.ENABLE_VIRTUAL_TERMINAL_INPUT)
	}
	if outOK {
		windows.SetConsoleMode(hOut, outMode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING)
	}

	return func() {
		if inOK {
			windows.SetConsoleMode(hIn, inMode)
		}
		if outOK {
			windows.SetConsoleMode(hOut, outMode)
		}
	}
}
