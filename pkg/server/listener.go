package server

import (
	"net"

	"github.com/duskforge/palisade/pkg/protocol"
)

// readBufSize is the chunk size read from the socket per Read call; the
// accumulator below handles frames spanning multiple reads or multiple
// frames landing in one read.
const readBufSize = 4096

func (s *ServerContext) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				s.Logger.Printf("accept error: %v", err)
				return
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *ServerContext) handleConnection(conn net.Conn) {
	c := s.Hub.Register(conn)
	s.Metrics.ConnectionOpened()

	d := newDispatcher(c, s)
	s.dispatchersMu.Lock()
	s.dispatchers[c.ID] = d
	s.dispatchersMu.Unlock()

	go d.run()

	defer s.teardown(c, d)

	acc := make([]byte, 0, readBufSize)
	buf := make([]byte, readBufSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
		}
		if err != nil {
			return
		}

		for {
			frame, consumed, decodeErr := protocol.DecodeFrame(acc)
			if decodeErr == protocol.ErrIncomplete {
				break
			}
			if decodeErr != nil {
				s.Metrics.FrameRejected(decodeErr.Error())
				return
			}

			s.Metrics.FrameReceived()
			c.SetIncoming(frame)
			d.Enqueue(frame)
			acc = acc[consumed:]
		}
	}
}

func (s *ServerContext) teardown(c *Connection, d *Dispatcher) {
	d.Close()

	s.dispatchersMu.Lock()
	delete(s.dispatchers, c.ID)
	s.dispatchersMu.Unlock()

	s.registry.ForgetConnection(c.ID)
	s.dropBucket(c.ID)
	s.Hub.Unregister(c)
	c.Disconnect()
	s.Metrics.ConnectionClosed()
}
