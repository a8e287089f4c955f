package server

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hraban/kennyfs/internal/backend"
	"github.com/hraban/kennyfs/internal/logger"
	"github.com/hraban/kennyfs/internal/ring"
	"github.com/hraban/kennyfs/internal/wire"
	"github.com/hraban/kennyfs/pkg/bufpool"
)

// errGracefulClose and errHandlerFailed are the two sentinel errors
// dispatchFor returns to stop Framer.Drain for a reason other than
// ring.ErrPoisoned; handleReadable tells the three apart to decide what (if
// anything) has already been replied.
var (
	errGracefulClose = errors.New("server: graceful close (quit)")
	errHandlerFailed = errors.New("server: handler could not queue its reply")
)

const recvScratchSize = 64 * 1024

// Run drives the single-threaded, readiness-based event loop: accept new
// connections, service readable and writable clients, then sweep
// disconnects, once per epoll_wait wakeup. It blocks until the listening
// socket cannot be created, or forever on success — the only way out is a
// fatal transport error on the listen socket itself.
func (s *Server) Run() error {
	listenFD, err := s.listen()
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	defer unix.Close(listenFD)
	s.listenFD = listenFD

	epollFD, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("server: epoll_create1: %w", err)
	}
	defer unix.Close(epollFD)
	s.epollFD = epollFD

	if err := s.epollAdd(listenFD, unix.EPOLLIN); err != nil {
		return fmt.Errorf("server: epoll_ctl(listen): %w", err)
	}

	logger.Info("kennyfsd listening", logger.KeyConnID, listenFD, "port", s.cfg.ListenPort)

	events := make([]unix.EpollEvent, 128)
	for {
		waitMs := -1
		if s.cfg.IdleTimeout > 0 {
			waitMs = int(s.cfg.IdleTimeout / time.Millisecond)
			if waitMs <= 0 {
				waitMs = 1
			}
		}

		n, err := unix.EpollWait(epollFD, events, waitMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("server: epoll_wait: %w", err)
		}

		acceptReady := false
		var readable, writable []int
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == listenFD {
				acceptReady = true
				continue
			}
			ev := events[i].Events
			if ev&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				readable = append(readable, fd)
			}
			if ev&unix.EPOLLOUT != 0 {
				writable = append(writable, fd)
			}
		}

		// Accept is checked before existing clients each cycle, so a starved
		// client cannot prevent new connections.
		if acceptReady {
			s.acceptAll()
		}

		var toClose []*Connection
		// Step 5: readable clients.
		for _, fd := range readable {
			c, ok := s.clients.get(fd)
			if !ok {
				continue
			}
			if s.handleReadable(c) {
				toClose = append(toClose, c)
			}
		}
		// Step 6: writable clients.
		for _, fd := range writable {
			c, ok := s.clients.get(fd)
			if !ok {
				continue
			}
			if s.handleWritable(c) {
				toClose = append(toClose, c)
			}
		}

		if s.cfg.IdleTimeout > 0 {
			toClose = append(toClose, s.idleClients()...)
		}

		// Step 7: disconnect marked clients.
		for _, c := range toClose {
			s.disconnect(c)
		}
	}
}

func (s *Server) listen() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}
	addr := &unix.SockaddrInet4{Port: s.cfg.ListenPort}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (s *Server) epollAdd(fd int, events uint32) error {
	return unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (s *Server) epollMod(fd int, events uint32) error {
	return unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

// syncWriteInterest re-registers c's epoll interest mask to match its TX
// ring's current state: EPOLLOUT is armed whenever there are queued bytes to
// drain, and dropped once the ring is empty. This must run after every point
// that can change c.tx.Used() from zero to nonzero (a handler queuing a
// reply, via dispatchFor) or from nonzero to zero (handleWritable draining
// it) — otherwise a connection that emptied its TX ring once (as every
// connection does right after the SOP handshake drains) would never have
// EPOLLOUT armed again, and every subsequent reply would sit in the ring
// forever with no readiness event to drain it.
func (s *Server) syncWriteInterest(c *Connection) {
	events := uint32(unix.EPOLLIN)
	if c.tx.Used() > 0 {
		events |= unix.EPOLLOUT
	}
	_ = s.epollMod(c.fd, events)
}

// acceptAll drains the listen socket's backlog. Each new connection has the
// SOP handshake string queued onto its TX ring immediately.
func (s *Server) acceptAll() {
	for {
		fd, sa, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			logger.Warn("accept failed", logger.Err(err))
			return
		}

		c := newConnection(fd, sockaddrString(sa), s.bufCap(), s.cfg.SOP)
		if _, err := c.tx.Write([]byte(s.cfg.SOP)); err != nil {
			// Can only happen if BUF_CAP is smaller than len(SOP); a
			// misconfiguration, not a per-connection condition.
			unix.Close(fd)
			continue
		}
		if err := s.epollAdd(fd, unix.EPOLLIN|unix.EPOLLOUT); err != nil {
			unix.Close(fd)
			continue
		}
		s.clients.add(c)
		s.lastActivity[fd] = time.Now()
		s.metrics.ConnectionOpened()
		logger.InfoCtx(logger.WithContext(context.Background(), c.logCtx), "connection accepted")
	}
}

// handleReadable performs one non-blocking recv sized to the connection's
// remaining RX capacity (skip recv entirely, not partially, when RX is
// full), folds the bytes in, then drains the framer.
// It returns true if the connection should be disconnected.
func (s *Server) handleReadable(c *Connection) bool {
	free := c.rx.Free()
	if free == 0 {
		return false
	}
	readSize := free
	if readSize > recvScratchSize {
		readSize = recvScratchSize
	}
	scratch := bufpool.Get(readSize)
	defer bufpool.Put(scratch)

	n, err := unix.Read(c.fd, scratch)
	if n > 0 {
		if _, werr := c.rx.Write(scratch[:n]); werr != nil {
			// readSize was bounded by Free(), so this cannot happen; treat
			// it as a logic error rather than a protocol condition.
			logger.Error("rx ring overflow despite bounded read", logger.Err(werr))
			return true
		}
		s.metrics.BytesReceived(n)
		s.lastActivity[c.fd] = time.Now()
	}
	if err != nil && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EWOULDBLOCK) {
		return true // transport error: close
	}
	if n == 0 && err == nil {
		return true // EOF
	}

	drainErr := c.framer.Drain(s.dispatchFor(c))
	if drainErr == nil {
		s.syncWriteInterest(c)
		return false
	}
	if errors.Is(drainErr, ring.ErrPoisoned) {
		s.metrics.ProtocolPoisoned()
		logger.WarnCtx(logger.WithContext(context.Background(), c.logCtx), "protocol poisoned", logger.Err(drainErr))
		return true
	}
	// errGracefulClose (quit) and errHandlerFailed (TX ring full) both
	// disconnect; only the latter is an anomaly worth a log line.
	if !errors.Is(drainErr, errGracefulClose) {
		logger.WarnCtx(logger.WithContext(context.Background(), c.logCtx), "dispatch failed", logger.Err(drainErr))
	}
	return true
}

// dispatchFor returns the ring.Dispatch callback bound to c: look up the
// handler, update metrics, translate its disposition into Drain's error
// contract.
func (s *Server) dispatchFor(c *Connection) ring.Dispatch {
	return func(op wire.OpID, body []byte) error {
		s.metrics.RequestDispatched(op.String())

		if int(op) >= len(s.opTable) || s.opTable[op] == nil {
			if err := sendEmptyReply(c, -int32(syscall.ENOSYS)); err != nil {
				return errHandlerFailed
			}
			return nil
		}

		switch s.opTable[op](s, c, body) {
		case dispositionClose:
			return errGracefulClose
		case dispositionError:
			return errHandlerFailed
		default:
			return nil
		}
	}
}

// handleWritable drains as much of c's TX ring as one write(2) will take. It
// returns true if the connection should be disconnected.
func (s *Server) handleWritable(c *Connection) bool {
	scratch := bufpool.Get(c.tx.Cap())
	defer bufpool.Put(scratch)

	view := c.tx.Peek(scratch)
	if len(view) == 0 {
		s.syncWriteInterest(c)
		return false
	}

	n, err := unix.Write(c.fd, view)
	if n > 0 {
		c.tx.Advance(n)
		s.metrics.BytesSent(n)
	}
	if err != nil && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EWOULDBLOCK) {
		return true
	}
	s.syncWriteInterest(c)
	return false
}

// idleClients returns connections that have not produced a readable event
// since cfg.IdleTimeout ago.
func (s *Server) idleClients() []*Connection {
	var idle []*Connection
	cutoff := time.Now().Add(-s.cfg.IdleTimeout)
	s.clients.forEach(func(c *Connection) {
		if last, ok := s.lastActivity[c.fd]; ok && last.Before(cutoff) {
			idle = append(idle, c)
		}
	})
	return idle
}

// disconnect tears a connection down: releases any file/dir handles the
// client never explicitly released, removes it from the client set,
// unregisters it from epoll, and closes its socket. Resources are released
// atomically relative to the rest of the loop — no other step runs between
// marking a connection and this call finishing.
func (s *Server) disconnect(c *Connection) {
	if c.closing {
		return
	}
	c.closing = true

	ctx := s.opContext()
	c.fileHandles.ForEach(func(fh backend.FileHandle) {
		_ = s.backend.Release(ctx, fh)
	})
	c.dirHandles.ForEach(func(dh backend.DirHandle) {
		_ = s.backend.Releasedir(ctx, dh)
	})

	s.clients.remove(c)
	_ = unix.EpollCtl(s.epollFD, unix.EPOLL_CTL_DEL, c.fd, nil)
	unix.Close(c.fd)
	delete(s.lastActivity, c.fd)
	s.metrics.ConnectionClosed()
	logger.InfoCtx(logger.WithContext(context.Background(), c.logCtx), "connection closed")
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%x]:%d", a.Addr, a.Port)
	default:
		return "unknown"
	}
}
