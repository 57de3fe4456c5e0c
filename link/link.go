package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"mushlink/protocol"
)

var ErrClosed = errors.New("link: closed")

// Options configures a Link
type Options struct {
	// Logger receives resync and drop events. Defaults to a no-op logger.
	Logger *zerolog.Logger

	// QueueDepth is the number of received packets held for Receive.
	// When full, the oldest packet is dropped.
	QueueDepth int

	// StopOnEOF ends the reader at io.EOF. Serial ports report read timeouts
	// as io.EOF, so leave it unset for them; set it for pipes and files.
	StopOnEOF bool
}

// Stats counts link activity since the Link was created
type Stats struct {
	FramesSent      uint64
	FramesReceived  uint64
	PacketsReceived uint64
	BadBlocks       uint64
	Resyncs         uint64
	PacketsDropped  uint64
}

// Link moves frame sequences over a serial byte stream. Sending writes one
// block per frame; a background reader reassembles received blocks into
// packets.
type Link struct {
	port      io.ReadWriteCloser
	log       zerolog.Logger
	stopOnEOF bool

	// Sequence of the next block sent (0x10-0x1F)
	nextSeq uint32

	// Synchronization state of the reader
	isSynchronized uint32

	inputBuffer *FifoBuffer
	assembler   *Assembler
	packets     chan []protocol.Frame

	writeMutex sync.Mutex
	readMutex  sync.Mutex

	framesSent      atomic.Uint64
	framesReceived  atomic.Uint64
	packetsReceived atomic.Uint64
	badBlocks       atomic.Uint64
	resyncs         atomic.Uint64
	packetsDropped  atomic.Uint64

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a Link on port and starts its reader
func New(port io.ReadWriteCloser, opts Options) *Link {
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = 16
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	l := &Link{
		port:           port,
		log:            logger.With().Str("component", "link").Logger(),
		stopOnEOF:      opts.StopOnEOF,
		nextSeq:        SequenceBase,
		isSynchronized: 1,
		inputBuffer:    NewFifoBuffer(8 * BlockLength),
		assembler:      NewAssembler(),
		packets:        make(chan []protocol.Frame, depth),
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
	}

	l.assembler.SetDropHandler(func(reason error, frames int) {
		l.packetsDropped.Add(1)
		l.log.Warn().Err(reason).Int("frames", frames).Msg("dropped partial packet")
	})

	go l.readLoop()

	return l
}

// Send writes the frames of one packet, one block per frame, in order
func (l *Link) Send(frames []protocol.Frame) error {
	if len(frames) == 0 {
		return nil
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	seq := uint8(atomic.LoadUint32(&l.nextSeq))
	msg, seq := AppendPacket(make([]byte, 0, len(frames)*BlockLength), seq, frames)

	n, err := l.port.Write(msg)
	if err != nil {
		return fmt.Errorf("write blocks: %w", err)
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}

	atomic.StoreUint32(&l.nextSeq, uint32(seq))
	l.framesSent.Add(uint64(len(frames)))
	l.log.Debug().Int("frames", len(frames)).Msg("sent packet")
	return nil
}

// SendPacket encodes p for destination d and sends it
func (l *Link) SendPacket(d protocol.Destination, p protocol.Payload) error {
	frames, err := protocol.EncodePacket(d, p)
	if err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}
	return l.Send(frames)
}

// Receive waits for the next complete packet
func (l *Link) Receive(ctx context.Context) ([]protocol.Frame, error) {
	select {
	case packet := <-l.packets:
		return packet, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.doneChan:
		// Reader stopped; hand out what is already queued
		select {
		case packet := <-l.packets:
			return packet, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Stats returns a snapshot of the link counters
func (l *Link) Stats() Stats {
	return Stats{
		FramesSent:      l.framesSent.Load(),
		FramesReceived:  l.framesReceived.Load(),
		PacketsReceived: l.packetsReceived.Load(),
		BadBlocks:       l.badBlocks.Load(),
		Resyncs:         l.resyncs.Load(),
		PacketsDropped:  l.packetsDropped.Load(),
	}
}

// Close stops the reader and closes the port
func (l *Link) Close() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if l.port != nil {
			err = l.port.Close()
		}
		<-l.doneChan
	})
	return err
}

// readLoop continuously reads from the port and processes blocks
func (l *Link) readLoop() {
	defer close(l.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-l.stopChan:
			return
		default:
		}

		n, err := l.port.Read(buffer)
		if n > 0 {
			l.feed(buffer[:n])
		}
		if err != nil {
			if isClosed(err) || (l.stopOnEOF && errors.Is(err, io.EOF)) {
				l.log.Debug().Err(err).Msg("port closed")
				return
			}
			select {
			case <-l.stopChan:
				return
			default:
			}
			// Serial ports report a read timeout as io.EOF
			if !errors.Is(err, io.EOF) {
				l.log.Debug().Err(err).Msg("read failed")
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// feed buffers data and processes it in chunks that fit the input buffer
func (l *Link) feed(data []byte) {
	l.readMutex.Lock()
	defer l.readMutex.Unlock()

	for len(data) > 0 {
		n := l.inputBuffer.Write(data)
		data = data[n:]
		l.processBlocks()
	}
}

// processBlocks parses and dispatches complete blocks from the input buffer
func (l *Link) processBlocks() {
	data := l.inputBuffer.Bytes()
	start := len(data)

	for len(data) > 0 {
		if !l.getSynchronized() {
			syncPos := -1
			for i, b := range data {
				if b == BlockValueSync {
					syncPos = i
					break
				}
			}

			if syncPos >= 0 {
				data = data[syncPos+1:]
				l.setSynchronized(true)
				l.resyncs.Add(1)
				l.log.Debug().Int("skipped", syncPos+1).Msg("resynchronized")
			} else {
				data = nil
			}
			continue
		}

		// Skip leading sync bytes
		if data[0] == BlockValueSync {
			data = data[1:]
			continue
		}

		// Wait for a full block
		if len(data) < BlockLength {
			break
		}

		seq, frame, err := DecodeBlock(data)
		if err != nil {
			l.badBlocks.Add(1)
			l.log.Debug().Err(err).Msg("bad block, resynchronizing")
			l.setSynchronized(false)
			continue
		}
		data = data[BlockLength:]
		l.framesReceived.Add(1)

		packet, err := l.assembler.Push(seq, frame)
		if errors.Is(err, ErrNotFirst) {
			l.log.Debug().Err(err).Msg("skipped frame")
			continue
		}
		if err != nil {
			l.log.Warn().Err(err).Uint8("seq", seq).Msg("discarded frame")
			continue
		}
		if packet != nil {
			l.dispatchPacket(packet)
		}
	}

	l.inputBuffer.Discard(start - len(data))
}

// dispatchPacket queues a packet for Receive, dropping the oldest when full
func (l *Link) dispatchPacket(packet []protocol.Frame) {
	l.packetsReceived.Add(1)
	select {
	case l.packets <- packet:
		return
	default:
	}

	select {
	case <-l.packets:
		l.packetsDropped.Add(1)
		l.log.Warn().Msg("receive queue full, dropped oldest packet")
	default:
	}
	select {
	case l.packets <- packet:
	default:
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}

func (l *Link) getSynchronized() bool {
	return atomic.LoadUint32(&l.isSynchronized) != 0
}

func (l *Link) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&l.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&l.isSynchronized, 0)
	}
}
