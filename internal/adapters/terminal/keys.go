package terminal

import (
	"context"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

type keyResult struct {
	r   rune
	err error
}

// KeyReader reads single keypresses, switching the terminal to raw mode only
// for the duration of each read. A read abandoned by a cancelled context is
// handed to the next caller rather than lost.
type KeyReader struct {
	in  io.Reader
	fd  int
	raw bool

	mu      sync.Mutex
	pending chan keyResult
	saved   *term.State
	restore func(fd int, state *term.State) error
}

// NewKeyReader reads from f, using raw mode when f is a terminal
func NewKeyReader(f *os.File) *KeyReader {
	fd := int(f.Fd())
	return &KeyReader{in: f, fd: fd, raw: term.IsTerminal(fd), restore: term.Restore}
}

func newReader(in io.Reader) *KeyReader {
	return &KeyReader{in: in, fd: -1, restore: term.Restore}
}

// ReadKey blocks for one key or until ctx is done
func (k *KeyReader) ReadKey(ctx context.Context) (rune, error) {
	k.mu.Lock()
	if k.pending == nil {
		k.pending = make(chan keyResult, 1)
		go k.read(k.pending)
	}
	pending := k.pending
	k.mu.Unlock()

	select {
	case res := <-pending:
		k.mu.Lock()
		k.pending = nil
		k.mu.Unlock()
		return res.r, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (k *KeyReader) read(out chan<- keyResult) {
	if k.raw {
		state, err := term.MakeRaw(k.fd)
		if err != nil {
			out <- keyResult{err: err}
			return
		}
		k.mu.Lock()
		k.saved = state
		k.mu.Unlock()
		defer k.restoreTerminal()
	}

	var buf [1]byte
	for {
		n, err := k.in.Read(buf[:])
		if n == 1 {
			r := rune(buf[0])
			if r == '\n' {
				r = '\r'
			}
			out <- keyResult{r: r}
			return
		}
		if err != nil {
			out <- keyResult{err: err}
			return
		}
	}
}

// Close puts the terminal back in cooked mode. A read abandoned by a
// cancelled context otherwise leaves it raw until a key arrives.
func (k *KeyReader) Close() error {
	return k.restoreTerminal()
}

func (k *KeyReader) restoreTerminal() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.saved == nil {
		return nil
	}
	state := k.saved
	k.saved = nil
	return k.restore(k.fd, state)
}
