package zmodem

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopFile is a file pushed through an in-memory loopback transfer.
type loopFile struct {
	name string
	data []byte
}

// runLoopback drives a Sender and a Receiver against each other with no
// transport: drained bytes are carried across in memory, optionally in
// small fragments, until both machines reach their terminal states.
// It returns the files collected on the receive side.
func runLoopback(t *testing.T, snd *Sender, rcv *Receiver, files []loopFile, fragment int) []loopFile {
	t.Helper()

	if len(files) > 0 {
		require.NoError(t, snd.StartFile(files[0].name, int64(len(files[0].data))))
	} else {
		require.NoError(t, snd.FinishSession())
	}

	var (
		toRcv, toSnd []byte
		sent         int
		received     []loopFile
		current      *loopFile
	)

	clip := func(b []byte) []byte {
		if fragment > 0 && len(b) > fragment {
			return b[:fragment]
		}
		return b
	}

	for i := 0; ; i++ {
		require.Less(t, i, 1_000_000, "loopback stalled")

		if snd.State() == SenderDone && rcv.State() == ReceiverSessionEnd {
			break
		}

		toRcv = append(toRcv, snd.DrainOutgoing()...)
		toSnd = append(toSnd, rcv.DrainOutgoing()...)

		if req, ok := snd.PollFile(); ok {
			chunk := files[sent].data[req.Offset : req.Offset+int64(req.Len)]
			require.NoError(t, snd.FeedFile(chunk))
			continue
		}

		if data := rcv.DrainFile(); len(data) > 0 {
			require.NotNil(t, current, "data before FileStart")
			current.data = append(current.data, data...)
			continue
		}

		for {
			ev, ok := snd.PollEvent()
			if !ok {
				break
			}
			if ev.Type == EventFileComplete {
				sent++
				if sent < len(files) {
					require.NoError(t, snd.StartFile(files[sent].name, int64(len(files[sent].data))))
				} else {
					require.NoError(t, snd.FinishSession())
				}
			}
		}
		for {
			ev, ok := rcv.PollEvent()
			if !ok {
				break
			}
			switch ev.Type {
			case EventFileStart:
				received = append(received, loopFile{name: ev.Name})
				current = &received[len(received)-1]
			case EventFileComplete:
				current = nil
			}
		}

		if len(toRcv) > 0 && rcv.State() != ReceiverSessionEnd {
			n, err := rcv.FeedIncoming(clip(toRcv))
			require.NoError(t, err)
			toRcv = toRcv[n:]
		}
		if len(toSnd) > 0 && snd.State() != SenderDone {
			n, err := snd.FeedIncoming(clip(toSnd))
			require.NoError(t, err)
			toSnd = toSnd[n:]
		}
	}

	return received
}

// patternData builds deterministic content covering every byte value.
func patternData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31 + i/256)
	}
	return data
}

func TestLoopbackSingleFile(t *testing.T) {
	files := []loopFile{{name: "hello.bin", data: patternData(100)}}
	got := runLoopback(t, NewSender(true), NewReceiver(), files, 0)

	require.Len(t, got, 1)
	assert.Equal(t, "hello.bin", got[0].name)
	assert.Equal(t, files[0].data, got[0].data)
}

func TestLoopbackMultiFile(t *testing.T) {
	files := []loopFile{
		{name: "empty.dat", data: nil},
		{name: "one.dat", data: []byte{0x18}},
		{name: "medium.dat", data: patternData(2500)},
	}
	got := runLoopback(t, NewSender(true), NewReceiver(), files, 0)

	require.Len(t, got, 3)
	for i, f := range files {
		assert.Equal(t, f.name, got[i].name)
		assert.True(t, bytes.Equal(f.data, got[i].data), "file %q content", f.name)
	}
}

func TestLoopbackFragmented(t *testing.T) {
	files := []loopFile{{name: "frag.bin", data: patternData(1500)}}
	for _, fragment := range []int{1, 3, 17} {
		got := runLoopback(t, NewSender(true), NewReceiver(), files, fragment)
		require.Len(t, got, 1, "fragment %d", fragment)
		assert.Equal(t, files[0].data, got[0].data, "fragment %d", fragment)
	}
}

func TestLoopbackStreamingWindow(t *testing.T) {
	// An overlapping-I/O receiver with a large buffer lets the sender
	// stream several ZCRCG subpackets per ACK.
	files := []loopFile{{name: "big.bin", data: patternData(20000)}}
	rcv := NewReceiver(
		WithCapabilities(CANFDX|CANOVIO|CANFC32),
		WithAdvertisedBuffer(8192),
	)
	got := runLoopback(t, NewSender(true), rcv, files, 0)

	require.Len(t, got, 1)
	assert.Equal(t, files[0].data, got[0].data)
}

func TestLoopbackCRC16(t *testing.T) {
	// A receiver without CANFC32 forces the whole data phase to CRC-16.
	files := []loopFile{{name: "crc16.bin", data: patternData(3000)}}
	rcv := NewReceiver(WithCapabilities(CANFDX))
	got := runLoopback(t, NewSender(true), rcv, files, 0)

	require.Len(t, got, 1)
	assert.Equal(t, files[0].data, got[0].data)
}

func TestLoopbackLargeSubpackets(t *testing.T) {
	files := []loopFile{{name: "zedzap.bin", data: patternData(40000)}}
	snd := NewSender(true, WithMaxSubpacketSize(8192))
	rcv := NewReceiver(
		WithMaxSubpacketSize(8192),
		WithAdvertisedBuffer(0xFFFF),
		WithCapabilities(CANFDX|CANOVIO|CANFC32),
	)
	got := runLoopback(t, snd, rcv, files, 0)

	require.Len(t, got, 1)
	assert.Equal(t, files[0].data, got[0].data)
}

func TestLoopbackNonInitiator(t *testing.T) {
	// With a quiet sender, the receiver's unsolicited ZRINIT still
	// brings the handshake up.
	files := []loopFile{{name: "f.bin", data: patternData(64)}}
	got := runLoopback(t, NewSender(false), NewReceiver(), files, 0)

	require.Len(t, got, 1)
	assert.Equal(t, files[0].data, got[0].data)
}

func TestLoopbackSessionTrailer(t *testing.T) {
	snd := NewSender(true)
	rcv := NewReceiver()
	runLoopback(t, snd, rcv, []loopFile{{name: "x", data: []byte("y")}}, 0)

	// After the ZFIN exchange the sender's final output ends in "OO".
	out := snd.DrainOutgoing()
	assert.True(t, bytes.HasSuffix(out, []byte("OO")), "final drain %q", out)
	assert.Equal(t, SenderDone, snd.State())
	assert.Equal(t, ReceiverSessionEnd, rcv.State())
}
