//go:build darwin || freebsd

package ioloop

import (
	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
	out    []Event
}

// NewPoller creates a kqueue-based poller.
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 1024),
	}, nil
}

func (p *kqueuePoller) Add(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}
	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (p *kqueuePoller) SetWriteInterest(fd int, enabled bool) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_WRITE,
	}
	if enabled {
		ev.Flags = unix.EV_ADD
	} else {
		ev.Flags = unix.EV_DELETE
	}
	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	if !enabled && err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *kqueuePoller) Remove(fd int) error {
	evs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	// Write filter may not be registered; delete is best effort.
	for _, ev := range evs {
		if _, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil); err != nil && err != unix.ENOENT {
			if ev.Filter == unix.EVFILT_READ {
				return err
			}
		}
	}
	return nil
}

func (p *kqueuePoller) Wait(timeoutMs int) ([]Event, error) {
	ts := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
	n, err := unix.Kevent(p.kqfd, nil, p.events, &ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	p.out = p.out[:0]
	for i := 0; i < n; i++ {
		e := p.events[i]
		p.out = append(p.out, Event{
			FD:       int(e.Ident),
			Readable: e.Filter == unix.EVFILT_READ,
			Writable: e.Filter == unix.EVFILT_WRITE,
			Closed:   e.Flags&unix.EV_EOF != 0,
		})
	}
	return p.out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
