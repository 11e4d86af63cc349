package relay

import (
	"time"

	"github.com/go-go-golems/veriwire/pkg/telephony"
)

// Options tunes one call's relay.
type Options struct {
	AudioQueueSize int `mapstructure:"audio_queue_size"`
	TextQueueSize  int `mapstructure:"text_queue_size"`
	ChunkSize      int `mapstructure:"chunk_size"`
	// StreamIDWait bounds how long the settings frame waits for the telephony
	// start event.
	StreamIDWait       time.Duration `mapstructure:"stream_id_wait"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	FlushPartialOnStop bool          `mapstructure:"flush_partial_on_stop"`
	ForwardDTMF        bool          `mapstructure:"forward_dtmf"`
}

func DefaultOptions() Options {
	return Options{
		AudioQueueSize:     64,
		TextQueueSize:      16,
		ChunkSize:          telephony.ChunkSize,
		StreamIDWait:       time.Second,
		WriteTimeout:       5 * time.Second,
		FlushPartialOnStop: true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AudioQueueSize <= 0 {
		o.AudioQueueSize = d.AudioQueueSize
	}
	if o.TextQueueSize <= 0 {
		o.TextQueueSize = d.TextQueueSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.StreamIDWait <= 0 {
		o.StreamIDWait = d.StreamIDWait
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	return o
}
