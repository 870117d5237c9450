package ledgrid

import (
	"bytes"
	"strconv"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamTransport, bellek içi byte akışını Transport olarak sunar.
// Tampon boşken Read, seri portun zaman aşımı davranışını taklit ederek
// (0, nil) döner.
type streamTransport struct {
	buf bytes.Buffer
}

func (s *streamTransport) Read(p []byte) (int, error) {
	if s.buf.Len() == 0 {
		return 0, nil
	}
	return s.buf.Read(p)
}

func (s *streamTransport) Write(p []byte) (int, error)       { return len(p), nil }
func (s *streamTransport) Close() error                      { return nil }
func (s *streamTransport) SetReadTimeout(time.Duration) error { return nil }
func (s *streamTransport) Drain() error                      { s.buf.Reset(); return nil }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 3, 255, 1024, 4096, maxPayloadLength}

	for _, size := range sizes {
		t.Run(strconv.Itoa(size), func(t *testing.T) {
			payload := make([]byte, size)
			for i := range payload {
				payload[i] = byte(i * 7)
			}

			pkt, err := encodePacket(payload)
			require.NoError(t, err)
			require.Len(t, pkt, size+4)

			st := &streamTransport{}
			st.buf.Write(pkt)

			got, err := readPacket(st, time.Now().Add(time.Second), maxPayloadLength)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	_, err := encodePacket(make([]byte, maxPayloadLength+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestPingPacketBytes(t *testing.T) {
	pkt, err := encodePacket(buildPingPayload())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x01, 0x00, 0xFF, 0x55}, pkt)
}

func TestConfigPacketBytes(t *testing.T) {
	// 8 şerit × 140 LED (0x008C), debug kapalı
	payload := buildConfigPayload(8, 140, false)
	assert.Equal(t, []byte{0x07, 0x08, 0x00, 0x8C, 0x00}, payload)

	pkt, err := encodePacket(payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x05, 0x00, 0x07, 0x08, 0x00, 0x8C, 0x00, 0x55}, pkt)
}

func TestSetPixelPayloadBytes(t *testing.T) {
	// Piksel indeksi big-endian yazılır
	payload := buildSetPixelPayload(981, Color{R: 9, G: 8, B: 7})
	assert.Equal(t, []byte{0x01, 0x03, 0xD5, 9, 8, 7}, payload)
}

func TestSetAllPayloadBytes(t *testing.T) {
	frame := Frame{
		{R: 1, G: 2, B: 3},
		{R: 4, G: 5, B: 6},
	}
	payload := buildSetAllPayload(frame)
	assert.Equal(t, []byte{0x06, 1, 2, 3, 4, 5, 6}, payload)
}

func TestConfigPayloadDebugFlag(t *testing.T) {
	assert.Equal(t, byte(1), buildConfigPayload(14, 140, true)[4])
	assert.Equal(t, byte(0), buildConfigPayload(14, 140, false)[4])
}

func TestDecodeResyncAfterCorruption(t *testing.T) {
	st := &streamTransport{}

	// END byte'ı bozuk paket: çözücü kısmen okunan paketi atmalı
	st.buf.Write([]byte{0xAA, 0x03, 0x00, 0x01, 0x02, 0x03, 0x00})

	// Ardından geçerli bir yanıt paketi
	valid, err := encodePacket([]byte{byte(RespOK), 'P', 'O', 'N', 'G'})
	require.NoError(t, err)
	st.buf.Write(valid)

	resp, err := readResponse(st, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RespOK, resp.Code)
	assert.Equal(t, "PONG", resp.Message)

	// Bozuk paket yutuldu; geriye yanıt kalmadı
	_, err = readResponse(st, 10*time.Millisecond)
	assert.ErrorIs(t, err, errNoResponse)
}

func TestDecodeResyncAfterOversizedLength(t *testing.T) {
	st := &streamTransport{}

	// Uzunluk alanı yanıt tavanını aşıyor: bozulma sayılır
	st.buf.Write([]byte{0xAA, 0xFF, 0xFF})

	valid, err := encodePacket([]byte{byte(RespError), 'S', 'I', 'Z', 'E'})
	require.NoError(t, err)
	st.buf.Write(valid)

	resp, err := readResponse(st, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RespError, resp.Code)
	assert.Equal(t, "SIZE", resp.Message)
}

func TestDecodeSkipsNoise(t *testing.T) {
	st := &streamTransport{}

	// Önyükleme gürültüsü: START olmayan byte'lar atılmalı
	st.buf.Write([]byte{0x00, 0x13, 0x37, 0x42})

	valid, err := encodePacket([]byte{byte(RespStatus)})
	require.NoError(t, err)
	st.buf.Write(valid)

	resp, err := readResponse(st, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RespStatus, resp.Code)
	assert.Equal(t, "", resp.Message)
}

func TestDecodeSkipsEmptyPayload(t *testing.T) {
	st := &streamTransport{}

	// Boş veri bölümlü paket geçerli çerçevedir ama yanıt taşımaz
	st.buf.Write([]byte{0xAA, 0x00, 0x00, 0x55})

	valid, err := encodePacket([]byte{byte(RespOK), 'o', 'k'})
	require.NoError(t, err)
	st.buf.Write(valid)

	resp, err := readResponse(st, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RespOK, resp.Code)
	assert.Equal(t, "ok", resp.Message)
}

func TestDecodeTimesOutOnEmptyStream(t *testing.T) {
	st := &streamTransport{}
	_, err := readResponse(st, 10*time.Millisecond)
	assert.ErrorIs(t, err, errNoResponse)
}

func TestParseResponseReplacesInvalidUTF8(t *testing.T) {
	resp := parseResponse([]byte{byte(RespError), 0xFF, 0xFE, 'X'})
	assert.Equal(t, RespError, resp.Code)
	assert.True(t, utf8.ValidString(resp.Message))
	assert.Contains(t, resp.Message, "X")
	assert.Contains(t, resp.Message, "�")
}

func TestReadResponsesCollectsQueued(t *testing.T) {
	st := &streamTransport{}
	for i := 0; i < 3; i++ {
		pkt, err := encodePacket([]byte{byte(RespOK), byte('a' + i)})
		require.NoError(t, err)
		st.buf.Write(pkt)
	}

	responses := readResponses(st, 50*time.Millisecond)
	require.Len(t, responses, 3)
	assert.Equal(t, "a", responses[0].Message)
	assert.Equal(t, "c", responses[2].Message)
}
