package ledgrid_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alparslanahmed/ledgrid"
)

func openTestMulti(t *testing.T, devices, strips, leds int, parallel bool, opt ...ledgrid.Option) (*ledgrid.MultiController, []*fakeTransport) {
	t.Helper()

	fts := make([]*fakeTransport, devices)
	transports := make([]ledgrid.Transport, devices)
	ports := make([]string, devices)
	for i := range fts {
		fts[i] = &fakeTransport{}
		transports[i] = fts[i]
		ports[i] = "fake" + string(rune('0'+i))
	}

	opts := append([]ledgrid.Option{ledgrid.WithTransports(transports)}, opt...)
	m, err := ledgrid.OpenMulti(ledgrid.MultiConfig{
		Ports:           ports,
		StripsPerDevice: strips,
		LedsPerStrip:    leds,
		Parallel:        parallel,
	}, opts...)
	require.NoError(t, err)
	return m, fts
}

// setAllPayload, cihaza yazılan SET_ALL paketinin piksel byte'larını döner.
func setAllPayload(t *testing.T, ft *fakeTransport) []byte {
	t.Helper()
	for _, p := range ft.packets() {
		if len(p) >= 4 && p[3] == byte(ledgrid.CmdSetAll) {
			return p[4 : len(p)-1]
		}
	}
	t.Fatal("SET_ALL paketi bulunamadı")
	return nil
}

func frameBytes(frame ledgrid.Frame) []byte {
	out := make([]byte, 0, 3*len(frame))
	for _, c := range frame {
		out = append(out, c.R, c.G, c.B)
	}
	return out
}

// ─── Kare Dağıtımı ──────────────────────────────────────────────────────────────

func TestSplitFramePreservesPixelOrder(t *testing.T) {
	m, fts := openTestMulti(t, 2, 7, 140, false)
	defer m.Close()

	frame := makeFrame(m.TotalLeds())
	m.SetAllPixels(frame)

	// Cihazların alt kareleri sırayla birleştirilince global kare çıkmalı
	rejoined := append(setAllPayload(t, fts[0]), setAllPayload(t, fts[1])...)
	assert.Equal(t, frameBytes(frame), rejoined)
}

func TestSplitFramePadsShortFrameWithBlack(t *testing.T) {
	m, fts := openTestMulti(t, 2, 2, 4, false)
	defer m.Close()

	// Son şerit eksik: 16 yerine 12 piksel
	short := makeFrame(m.TotalLeds() - 4)
	m.SetAllPixels(short)

	payload := setAllPayload(t, fts[1])
	require.Len(t, payload, 3*2*4) // cihaz her zaman tam uzunlukta kare alır

	// İlk şerit kareden gelir, eksik şerit siyah doldurulur
	assert.Equal(t, frameBytes(short[8:12]), payload[:12])
	assert.Equal(t, make([]byte, 12), payload[12:])
}

func TestSetPixelRoutesToOwningDevice(t *testing.T) {
	m, fts := openTestMulti(t, 2, 7, 140, false)
	defer m.Close()

	// Global 981 = şerit 7, LED 1 = cihaz 1, yerel indeks 1
	m.SetPixel(981, ledgrid.Color{R: 9, G: 8, B: 7})

	assert.Equal(t, 0, fts[0].commandCount(ledgrid.CmdSetPixel))
	require.Equal(t, 1, fts[1].commandCount(ledgrid.CmdSetPixel))

	pkts := fts[1].packets()
	assert.Equal(t, []byte{0xAA, 0x06, 0x00, 0x01, 0x00, 0x01, 9, 8, 7, 0x55}, pkts[len(pkts)-1])
}

func TestSetPixelOutOfGridIgnored(t *testing.T) {
	m, fts := openTestMulti(t, 2, 2, 4, false)
	defer m.Close()

	m.SetPixel(m.TotalLeds(), ledgrid.Color{R: 1})
	m.SetPixel(-1, ledgrid.Color{R: 1})

	for _, ft := range fts {
		assert.Equal(t, 0, ft.commandCount(ledgrid.CmdSetPixel))
	}
}

// ─── Paralel Gönderim ───────────────────────────────────────────────────────────

func TestParallelSendReachesAllDevices(t *testing.T) {
	m, fts := openTestMulti(t, 3, 1, 4, true)
	defer m.Close()

	m.SetAllPixels(makeFrame(m.TotalLeds()))

	for d, ft := range fts {
		assert.Equal(t, 1, ft.commandCount(ledgrid.CmdSetAll), "cihaz %d", d)
	}
}

func TestParallelSendBoundedByStalledDevice(t *testing.T) {
	m, fts := openTestMulti(t, 4, 1, 4, true,
		ledgrid.WithFanoutTimeout(100*time.Millisecond))
	defer m.Close()

	// 2. cihazın yazmaları kanal kapanana kadar bloklanır
	stall := make(chan struct{})
	fts[2].setStall(stall)
	defer close(stall)

	start := time.Now()
	m.SetAllPixels(makeFrame(m.TotalLeds()))
	elapsed := time.Since(start)

	// Takılan cihaz kareyi geciktirir ama kilitleyemez
	assert.Less(t, elapsed, time.Second)

	stats := m.Stats()
	for _, d := range []int{0, 1, 3} {
		assert.Equal(t, int64(1), stats.Devices[d].FramesSent, "cihaz %d", d)
	}
	assert.Equal(t, int64(0), stats.Devices[2].FramesSent)
	assert.GreaterOrEqual(t, stats.Devices[2].Errors, int64(1))
}

func TestSequentialSendContinuesPastFailingDevice(t *testing.T) {
	m, fts := openTestMulti(t, 3, 1, 4, false)
	defer m.Close()

	fts[1].setWriteErr(os.ErrDeadlineExceeded)

	m.SetAllPixels(makeFrame(m.TotalLeds()))

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Devices[0].FramesSent)
	assert.Equal(t, int64(0), stats.Devices[1].FramesSent)
	assert.GreaterOrEqual(t, stats.Devices[1].Errors, int64(1))
	assert.Equal(t, int64(1), stats.Devices[2].FramesSent)
}

// ─── Kısmi Açılış ───────────────────────────────────────────────────────────────

func TestOpenMultiPartialFailure(t *testing.T) {
	ft := &fakeTransport{}

	// İkinci cihaz için transport verilmez: var olmayan port açılmaya
	// çalışılır ve başarısız olur
	m, err := ledgrid.OpenMulti(ledgrid.MultiConfig{
		Ports:           []string{"fake0", "/dev/ledgrid-yok-1"},
		StripsPerDevice: 2,
		LedsPerStrip:    4,
	}, ledgrid.WithTransports([]ledgrid.Transport{ft}))

	require.Error(t, err)
	assert.ErrorIs(t, err, ledgrid.ErrTransportUnavailable)
	require.NotNil(t, m)
	defer m.Close()

	// Açılabilen cihazla çalışmaya devam edilir
	m.SetAllPixels(makeFrame(m.TotalLeds()))
	assert.Equal(t, 1, ft.commandCount(ledgrid.CmdSetAll))

	stats := m.Stats()
	require.Len(t, stats.Devices, 2)
	assert.Equal(t, int64(1), stats.Devices[0].FramesSent)
	assert.Equal(t, ledgrid.Stats{}, stats.Devices[1])
}

// ─── Görüntü ve Yapılandırma Dağıtımı ───────────────────────────────────────────

func TestMultiBrightnessFanout(t *testing.T) {
	m, fts := openTestMulti(t, 2, 1, 4, false)
	defer m.Close()

	m.SetBrightness(200)
	m.SetBrightness(200)

	for d, ft := range fts {
		assert.Equal(t, 1, ft.commandCount(ledgrid.CmdSetBrightness), "cihaz %d", d)
	}
}

func TestMultiClearFanout(t *testing.T) {
	m, fts := openTestMulti(t, 2, 1, 4, false)
	defer m.Close()

	m.Clear()

	for d, ft := range fts {
		assert.Equal(t, 1, ft.commandCount(ledgrid.CmdClear), "cihaz %d", d)
	}
}

func TestMultiShowSkippedWhenInline(t *testing.T) {
	m, fts := openTestMulti(t, 2, 1, 4, false)
	defer m.Close()

	m.Show()

	for _, ft := range fts {
		assert.Equal(t, 0, ft.commandCount(ledgrid.CmdShow))
	}
}

func TestMultiShowFanoutWhenNotInline(t *testing.T) {
	m, fts := openTestMulti(t, 2, 1, 4, false, ledgrid.WithInlineShow(false))
	defer m.Close()

	m.Show()

	for d, ft := range fts {
		assert.Equal(t, 1, ft.commandCount(ledgrid.CmdShow), "cihaz %d", d)
	}
}

func TestMultiConfigureFanout(t *testing.T) {
	m, fts := openTestMulti(t, 2, 1, 4, false)
	defer m.Close()

	m.Configure()

	for d, ft := range fts {
		assert.Equal(t, 1, ft.commandCount(ledgrid.CmdConfig), "cihaz %d", d)
	}
}

func TestMultiCloseIdempotent(t *testing.T) {
	m, fts := openTestMulti(t, 2, 1, 4, false)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	for _, ft := range fts {
		assert.Equal(t, 1, ft.closedCount())
	}
}

// ─── Telemetri ──────────────────────────────────────────────────────────────────

func TestAggregateStats(t *testing.T) {
	m, _ := openTestMulti(t, 2, 2, 4, false)
	defer m.Close()

	m.SetAllPixels(makeFrame(m.TotalLeds()))
	m.SetAllPixels(makeFrame(m.TotalLeds()))

	stats := m.Stats()
	require.Len(t, stats.Devices, 2)

	assert.Equal(t, int64(4), stats.Aggregate.FramesSent)
	assert.Equal(t, m.TotalLeds(), stats.Aggregate.TotalLeds)
	assert.Equal(t,
		stats.Devices[0].BytesSent+stats.Devices[1].BytesSent,
		stats.Aggregate.BytesSent)

	// En yavaş cihaz toplamın son kare süresini belirler
	maxLast := stats.Devices[0].LastFrameDuration
	if stats.Devices[1].LastFrameDuration > maxLast {
		maxLast = stats.Devices[1].LastFrameDuration
	}
	assert.Equal(t, maxLast, stats.Aggregate.LastFrameDuration)

	// Ortalama, kare sayısıyla ağırlıklıdır
	var weightedSum float64
	var weightFrames int64
	for _, s := range stats.Devices {
		if s.FramesSent > 0 {
			weightedSum += float64(s.AvgFrameDuration) * float64(s.FramesSent)
			weightFrames += s.FramesSent
		}
	}
	expected := time.Duration(weightedSum / float64(weightFrames))
	assert.Equal(t, expected, stats.Aggregate.AvgFrameDuration)
}

func TestLayoutAccessors(t *testing.T) {
	m, _ := openTestMulti(t, 2, 7, 140, false)
	defer m.Close()

	assert.Equal(t, 2, m.DeviceCount())
	assert.Equal(t, 14, m.StripCount())
	assert.Equal(t, 2*7*140, m.TotalLeds())
}
