package filexfer

import "time"

// DefaultChunkSize is the payload size of full data packets.
const DefaultChunkSize = 2048

// Progress describes a transfer in flight.
type Progress struct {
	// Packet is the number of data packets exchanged so far
	Packet int

	// TotalPackets is the number of data packets in the transfer
	TotalPackets int

	// Bytes is the number of file bytes exchanged so far
	Bytes int64

	// TotalBytes is the file size
	TotalBytes int64

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time since the first data packet
	ElapsedTime time.Duration
}

// ProgressCallback is called after every data packet. It runs on the
// transfer goroutine and should return quickly.
type ProgressCallback func(Progress)

type config struct {
	chunkSize int
	progress  ProgressCallback
}

func defaultConfig() config {
	return config{chunkSize: DefaultChunkSize}
}

// Option configures a Sender, a Receiver or a session call.
type Option func(*config)

// WithChunkSize sets the payload size of full data packets.
func WithChunkSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithProgress sets a callback to track transfer progress.
//
// Example:
//
//	s := filexfer.NewSender(e, filexfer.WithProgress(func(p filexfer.Progress) {
//	    fmt.Printf("%.1f%% - packet %d/%d\n", p.Percentage, p.Packet, p.TotalPackets)
//	}))
func WithProgress(callback ProgressCallback) Option {
	return func(c *config) {
		c.progress = callback
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c config) report(start time.Time, n, total int, done, size int64) {
	if c.progress == nil {
		return
	}
	pct := 100.0
	if size > 0 {
		pct = float64(done) / float64(size) * 100
	}
	c.progress(Progress{
		Packet:       n,
		TotalPackets: total,
		Bytes:        done,
		TotalBytes:   size,
		Percentage:   pct,
		ElapsedTime:  time.Since(start),
	})
}
