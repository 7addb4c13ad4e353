package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var ErrLinkClosed = errors.New("link closed")

// Link is the interrupter side of the controller link. Commands go out
// unacknowledged; STATUS frames are decoded by a background reader.
type Link struct {
	port io.ReadWriteCloser

	decoder  Decoder
	statuses chan Status

	frameErrors atomic.Uint32
	unexpected  atomic.Uint32

	writeMutex sync.Mutex
	closeOnce  sync.Once

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewLink starts the reader on port. Close stops it and closes the port.
func NewLink(port io.ReadWriteCloser) *Link {
	l := &Link{
		port:     port,
		statuses: make(chan Status, 16),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// Send frames and writes one command.
func (l *Link) Send(c Command) error {
	msg, err := EncodeCommand(c)
	if err != nil {
		return fmt.Errorf("encode %T: %w", c, err)
	}
	return l.write(msg)
}

func (l *Link) write(msg []byte) error {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	select {
	case <-l.stopChan:
		return ErrLinkClosed
	default:
	}

	n, err := l.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

// Statuses delivers decoded STATUS reports. When the consumer falls behind
// the oldest report is dropped. The channel is closed when the link stops.
func (l *Link) Statuses() <-chan Status {
	return l.statuses
}

// WaitStatus returns the next STATUS report.
func (l *Link) WaitStatus(timeout time.Duration) (Status, error) {
	select {
	case s, ok := <-l.statuses:
		if !ok {
			return Status{}, ErrLinkClosed
		}
		return s, nil
	case <-time.After(timeout):
		return Status{}, fmt.Errorf("status timeout after %v", timeout)
	}
}

// FrameErrors counts inbound frames dropped for length, checksum or shape.
func (l *Link) FrameErrors() uint32 { return l.frameErrors.Load() }

// Unexpected counts valid frames that were not STATUS reports.
func (l *Link) Unexpected() uint32 { return l.unexpected.Load() }

func (l *Link) readLoop() {
	defer close(l.doneChan)
	defer close(l.statuses)

	buffer := make([]byte, 256)
	for {
		select {
		case <-l.stopChan:
			return
		default:
		}

		n, err := l.port.Read(buffer)
		for _, b := range buffer[:n] {
			l.feed(b)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || l.stopped() {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (l *Link) feed(b byte) {
	frame, ok, err := l.decoder.Feed(b)
	if err != nil {
		l.frameErrors.Add(1)
		return
	}
	if !ok {
		return
	}
	if frame.Kind != KindStatus {
		l.unexpected.Add(1)
		return
	}
	s, err := ParseStatus(frame)
	if err != nil {
		l.frameErrors.Add(1)
		return
	}
	l.dispatch(s)
}

func (l *Link) dispatch(s Status) {
	select {
	case l.statuses <- s:
		return
	default:
	}
	select {
	case <-l.statuses:
	default:
	}
	select {
	case l.statuses <- s:
	default:
	}
}

func (l *Link) stopped() bool {
	select {
	case <-l.stopChan:
		return true
	default:
		return false
	}
}

// Close stops the reader and closes the port.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.writeMutex.Lock()
		close(l.stopChan)
		l.writeMutex.Unlock()
		err = l.port.Close()
		<-l.doneChan
	})
	return err
}
