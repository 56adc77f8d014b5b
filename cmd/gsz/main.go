// Command gsz sends files over stdin/stdout using the ZMODEM protocol,
// mirroring the classic sz(1). Run it on the local end of a terminal
// whose remote end is running a ZMODEM receiver.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/telwire/go-zmodem/zmodem"
)

var (
	verbose   = flag.Bool("v", false, "verbose mode")
	quiet     = flag.Bool("q", false, "quiet mode")
	blockSize = flag.Int("B", zmodem.DefaultSubpacketSize, "subpacket size in bytes (max 8192)")
	window    = flag.Int("w", zmodem.DefaultPerAck, "subpackets per window")
	logFile   = flag.String("log", "", "protocol log file (for debugging)")
	help      = flag.Bool("h", false, "show help")
)

const versionString = "gsz version 0.2.0"

func showUsage(exitCode int) {
	fmt.Fprintf(os.Stderr, `Usage: %s [options] file...

Options:
  -B n     subpacket size in bytes (default %d, max %d)
  -w n     subpackets per window (default %d)
  -log f   write a protocol trace to file f
  -v       verbose mode
  -q       quiet mode
  -h       show help

%s
`, os.Args[0], zmodem.DefaultSubpacketSize, zmodem.MaxSubpacketLimit, zmodem.DefaultPerAck, versionString)
	os.Exit(exitCode)
}

func main() {
	flag.Parse()
	if *help {
		showUsage(0)
	}

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "%s: no files specified\n", os.Args[0])
		showUsage(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, closeLog, err := makeLogger(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	defer closeLog()

	// ZMODEM frames must cross the terminal untouched.
	restore := rawMode()
	defer restore()

	config := zmodem.DefaultSessionConfig()
	config.MaxSubpacketSize = *blockSize
	config.MaxSubpacketsPerAck = *window

	transport := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}

	session := zmodem.NewSession(transport,
		zmodem.WithSessionConfig(config),
		zmodem.WithSessionLogger(logger),
		zmodem.WithCallbacks(progressCallbacks()),
	)

	if err := session.Send(ctx, files...); err != nil {
		restore()
		fmt.Fprintf(os.Stderr, "\n%s: transfer failed: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	if !*quiet {
		restore()
		fmt.Fprintf(os.Stderr, "\n%s: transfer complete\n", os.Args[0])
	}
}

func makeLogger(path string) (zmodem.Logger, func(), error) {
	if path == "" {
		return zmodem.NoopLogger{}, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	zl := zerolog.New(f).With().Timestamp().Str("tool", "gsz").Logger()
	return zmodem.NewZerologLogger(zl), func() { f.Close() }, nil
}

// rawMode puts the controlling terminal into raw mode for the duration
// of the transfer, when there is one.
func rawMode() func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}
	}
	return func() { term.Restore(fd, state) }
}

func progressCallbacks() *zmodem.Callbacks {
	if *quiet {
		return nil
	}
	return &zmodem.Callbacks{
		OnFileStart: func(name string, size int64) {
			fmt.Fprintf(os.Stderr, "\r\nSending %s (%d bytes)\r\n", name, size)
		},
		OnProgress: func(name string, transferred, total int64, rate float64) {
			if !*verbose {
				return
			}
			percent := 0.0
			if total > 0 {
				percent = float64(transferred) / float64(total) * 100
			}
			fmt.Fprintf(os.Stderr, "\r%s: %3.0f%% (%.0f B/s)", name, percent, rate)
		},
		OnFileComplete: func(name string, transferred int64, elapsed time.Duration) {
			fmt.Fprintf(os.Stderr, "\r%s: %d bytes in %s\r\n", name, transferred, elapsed.Round(time.Millisecond))
		},
	}
}
