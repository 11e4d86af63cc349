package telephony

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeStart(t *testing.T) {
	raw := `{"event":"start","sequenceNumber":"1","start":{"streamSid":"MZ1","callSid":"CA1","accountSid":"AC1",
		"tracks":["inbound"],"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1},
		"customParameters":{"payment_id":"10sf917264"}},"streamSid":"MZ1"}`
	msg, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, EventStart, msg.Event)
	require.Equal(t, "MZ1", msg.Start.StreamSid)
	require.Equal(t, "CA1", msg.Start.CallSid)
	require.Equal(t, 8000, msg.Start.MediaFormat.SampleRate)
	require.Equal(t, "10sf917264", msg.Start.CustomParameters["payment_id"])
}

func TestDecodeMedia(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	msg, err := Decode([]byte(`{"event":"media","streamSid":"MZ1","media":{"track":"inbound","chunk":"2","timestamp":"5","payload":"` + payload + `"}}`))
	require.NoError(t, err)
	require.True(t, msg.Media.IsInbound())
	audio, err := msg.Media.Audio()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, audio)

	require.False(t, Media{Track: TrackOutbound}.IsInbound())
	require.True(t, Media{}.IsInbound())

	_, err = Media{Payload: "!!"}.Audio()
	require.Error(t, err)
}

func TestDecodeErrors(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{}`,
		`{"event":"start"}`,
		`{"event":"start","start":{"callSid":"CA1"}}`,
		`{"event":"media"}`,
		`{"event":"dtmf"}`,
	} {
		_, err := Decode([]byte(raw))
		require.Error(t, err, raw)
	}

	msg, err := Decode([]byte(`{"event":"stop","streamSid":"MZ1","stop":{"callSid":"CA1"}}`))
	require.NoError(t, err)
	require.Equal(t, EventStop, msg.Event)

	msg, err = Decode([]byte(`{"event":"dtmf","dtmf":{"track":"inbound_track","digit":"5"}}`))
	require.NoError(t, err)
	require.Equal(t, "5", msg.DTMF.Digit)
}

func TestEncodeMediaAndClear(t *testing.T) {
	b, err := EncodeMedia("MZ1", []byte("hello"))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, "media", m["event"])
	require.Equal(t, "MZ1", m["streamSid"])
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello")), m["media"].(map[string]any)["payload"])

	b, err = EncodeClear("MZ1")
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"clear","streamSid":"MZ1"}`, string(b))
}

func TestChunkerEmitsExactChunks(t *testing.T) {
	c := NewChunker(ChunkSize)

	require.Empty(t, c.Write(bytes.Repeat([]byte{1}, 3199)))
	require.Equal(t, 3199, c.Buffered())

	chunks := c.Write([]byte{2})
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], ChunkSize)
	require.Equal(t, byte(2), chunks[0][ChunkSize-1])
	require.Equal(t, 0, c.Buffered())

	chunks = c.Write(bytes.Repeat([]byte{3}, 2*ChunkSize+10))
	require.Len(t, chunks, 2)
	require.Equal(t, 10, c.Buffered())
}

func TestChunkerPreservesOrder(t *testing.T) {
	c := NewChunker(4)
	var got []byte
	for i := 0; i < 10; i++ {
		for _, ch := range c.Write([]byte{byte(i), byte(i)}) {
			got = append(got, ch...)
		}
	}
	require.Equal(t, []byte{0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9}, got)
}

func TestChunkerFlush(t *testing.T) {
	c := NewChunker(ChunkSize)
	c.Write(bytes.Repeat([]byte{7}, 3199))
	tail := c.Flush()
	require.Len(t, tail, 3199)
	require.Nil(t, c.Flush())
	require.Equal(t, 0, c.Buffered())
}
