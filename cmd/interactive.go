package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"

	"appraisal/internal/report"
)

type key int

const (
	keyOther key = iota
	keyUp
	keyDown
	keyEnter
	keyQuit
)

// readKey decodes one keypress from a terminal in raw mode. Windows consoles
// send arrows as 0 or 224 followed by a scan code; others send CSI sequences.
func readKey(r *bufio.Reader) (key, error) {
	b, err := r.ReadByte()
	if err != nil {
		return keyQuit, err
	}
	switch b {
	case 0, 224:
		code, _ := r.ReadByte()
		switch code {
		case 72:
			return keyUp, nil
		case 80:
			return keyDown, nil
		case 13:
			return keyEnter, nil
		}
	case 27:
		if r.Buffered() == 0 {
			// bare Esc
			return keyQuit, nil
		}
		if b2, _ := r.ReadByte(); b2 != '[' || r.Buffered() == 0 {
			return keyOther, nil
		}
		switch b3, _ := r.ReadByte(); b3 {
		case 'A':
			return keyUp, nil
		case 'B':
			return keyDown, nil
		}
	case '\r', '\n':
		return keyEnter, nil
	case 3, 'q': // Ctrl-C
		return keyQuit, nil
	case 'k':
		return keyUp, nil
	case 'j':
		return keyDown, nil
	}
	return keyOther, nil
}

// interactiveSelect lets the user move through flagged properties with arrow
// keys and press Enter to view why a property was flagged.
func interactiveSelect(flagged []report.Flag, colour bool) {
	if len(flagged) == 0 {
		return
	}
	defer enableVT()()

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Println("(interactive selection not supported on this terminal)")
		return
	}
	defer term.Restore(fd, oldState)

	reader := bufio.NewReader(os.Stdin)
	selected := 0

	redraw := func() {
		// raw mode does not translate \n, so lines end in \r\n
		fmt.Print("\033[H\033[2J")
		for i, f := range flagged {
			prefix := "  "
			if i == selected {
				prefix = "> "
			}
			fmt.Print(prefix + f.Summary() + "\r\n")
		}
		fmt.Printf("(%d flagged; ↑/↓ to navigate, Enter to view details, Esc to quit)\r\n", len(flagged))
	}

	// details drops back to cooked mode while a property is shown.
	details := func() bool {
		term.Restore(fd, oldState)
		fmt.Println()
		report.RenderFlag(os.Stdout, flagged[selected], colour)

		fmt.Print("\n(press Enter to return)")
		_, _ = bufio.NewReader(os.Stdin).ReadBytes('\n')

		if oldState, err = term.MakeRaw(fd); err != nil {
			return false
		}
		reader = bufio.NewReader(os.Stdin)
		return true
	}

	redraw()
	for {
		k, err := readKey(reader)
		if err != nil {
			return
		}
		switch k {
		case keyUp:
			if selected == 0 {
				continue
			}
			selected--
		case keyDown:
			if selected == len(flagged)-1 {
				continue
			}
			selected++
		case keyEnter:
			if !details() {
				return
			}
		case keyQuit:
			fmt.Print("\r\n")
			return
		default:
			continue
		}
		redraw()
	}
}
