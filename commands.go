package ledgrid

import (
	"fmt"
	"time"
)

// ─── Kare Komutları ─────────────────────────────────────────────────────────────

// SetAllPixels, tüm kareyi tek pakette gönderir. Render döngüsünün her
// tick'inde çağrılan ana sıcak yoldur.
//
// Kare uzunluğu tam olarak TotalLeds olmalıdır; uyumsuzluk
// ErrFrameSizeMismatch ile döner ve hiçbir şey gönderilmez. Gerekiyorsa
// önce yapılandırma tazelenir. Açılıştan sonraki ilk birkaç karede cihaz
// yanıtları tanı amaçlı okunup loglanır; bu pencere kararlı durum
// davranışının parçası değildir ve gönderimi asla iptal etmez.
//
// Yazma zaman aşımı ErrWriteTimeout olarak döner: o kare bu cihaz için
// kaybedilmiştir, bu katmanda yeniden deneme yapılmaz.
func (c *Controller) SetAllPixels(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}
	if len(frame) != c.totalLeds {
		return fmt.Errorf("%w: %d renk bekleniyordu, %d verildi",
			ErrFrameSizeMismatch, c.totalLeds, len(frame))
	}

	start := time.Now()

	if err := c.refreshConfiguration(); err != nil {
		return err
	}

	if err := c.writePacket(buildSetAllPayload(frame)); err != nil {
		return err
	}

	// Devreye alma penceresi: ilk karelerin yanıtlarını logla
	c.statsMu.Lock()
	bringUp := c.framesSent < bringUpFrameCount
	frameNo := c.framesSent + 1
	c.statsMu.Unlock()

	if bringUp {
		responses := readResponses(c.transport, bringUpResponseTimeout)
		if len(responses) > 0 {
			c.logf("kare #%d yanıtı: %s %q", frameNo, responses[0].Code, responses[0].Message)
		} else if c.opts.debug {
			c.logf("kare #%d: yanıt yok", frameNo)
		}
	}

	c.statsMu.Lock()
	c.framesSent++
	c.lastFrameDuration = time.Since(start)
	c.totalFrameDuration += c.lastFrameDuration
	c.statsMu.Unlock()

	return nil
}

// SetPixel, tek bir pikselin rengini ayarlar (göstermez). Piksel düzeyinde
// güncellemeler tanı amaçlıdır; aralık dışı index hata değildir, sessizce
// yok sayılır. Yanıt beklenmez.
func (c *Controller) SetPixel(index int, color Color) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}
	if index < 0 || index >= c.totalLeds {
		return nil
	}

	return c.writePacket(buildSetPixelPayload(index, color))
}

// SetRange, bir piksel aralığını ayarlar. Aralık verisinin biçimi
// firmware sözleşmesine bırakılmıştır; args olduğu gibi iletilir.
func (c *Controller) SetRange(args []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}

	return c.writePacket(buildRangePayload(args))
}

// ─── Görüntü Komutları ──────────────────────────────────────────────────────────

// SetBrightness, global parlaklığı ayarlar. Değer en son gönderilen
// parlaklıkla aynıysa hiçbir şey gönderilmez: sıcak yolda gereksiz
// parlaklık yazımı bant genişliği israfıdır ve gözlenen donanımda görünür
// titremeye yol açabilmektedir.
func (c *Controller) SetBrightness(value uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}
	if int(value) == c.brightness {
		return nil
	}

	if err := c.writePacket(buildBrightnessPayload(value)); err != nil {
		return err
	}
	c.brightness = int(value)

	if c.opts.debug {
		c.logf("parlaklık %d olarak ayarlandı", value)
	}
	return nil
}

// Clear, tüm LED'leri söndürür ve hemen gösterir. Temizleme nadirdir ve
// her zaman etkili olmalıdır; bu yüzden önbelleğe alınmaz, koşulsuz gönderilir.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}

	return c.writePacket([]byte{byte(CmdClear)})
}

// Show, bekleyen piksel değişikliklerini ekrana yansıtır. Yalnızca
// InlineShow false olan kurulumlarda gereklidir; SetAllPixels görüntüyü
// kendiliğinden güncelliyorsa çağıranlar Show çağırmamalıdır.
func (c *Controller) Show() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}

	return c.writePacket([]byte{byte(CmdShow)})
}

// ─── Tanı Komutları ─────────────────────────────────────────────────────────────

// Ping, bağlantı testi için PING gönderir. Yanıt beklenmez; yanıtlar
// devreye alma penceresi dışında isteğe bağlı tanı verisidir.
func (c *Controller) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}

	return c.writePacket(buildPingPayload())
}

// Configure, yenileme aralığını beklemeden yapılandırmayı hemen gönderir.
// Cihaz elle yeniden başlatıldığında kullanışlıdır.
func (c *Controller) Configure() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}

	c.configSent = false
	return c.refreshConfiguration()
}

// ─── Telemetri ──────────────────────────────────────────────────────────────────

// Stats, kümülatif telemetri sayaçlarının anlık görüntüsünü döner.
// Salt okunurdur, yan etkisi yoktur. Ortalama kare süresi ve teorik FPS
// türetilmiş değerlerdir; hiç kare gönderilmemişse 0 dönerler.
func (c *Controller) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	s := Stats{
		TotalLeds:         c.totalLeds,
		FramesSent:        c.framesSent,
		BytesSent:         c.bytesSent,
		Errors:            c.errorCount,
		LastFrameDuration: c.lastFrameDuration,
	}
	if c.framesSent > 0 {
		s.AvgFrameDuration = c.totalFrameDuration / time.Duration(c.framesSent)
		if s.AvgFrameDuration > 0 {
			s.TheoreticalFPS = float64(time.Second) / float64(s.AvgFrameDuration)
		}
	}
	return s
}
