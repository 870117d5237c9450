package ledgrid

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Controller, tek bir LED denetleyici kartıyla seri bağlantıyı yöneten ana
// yapıdır. Protokol durumunu (gönderilmiş yapılandırma, parlaklık önbelleği)
// ve telemetri sayaçlarını kendi üzerinde tutar; süreç genelinde global
// durum yoktur, aynı süreçte birden fazla bağımsız denetleyici çalışabilir.
//
// Kullanım:
//
//	ctrl, err := ledgrid.Open(ledgrid.Config{Port: "/dev/ttyACM0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctrl.Close()
//
//	err = ctrl.SetAllPixels(frame)
type Controller struct {
	// cfg, cihazın şerit düzeni ve port bilgisidir.
	cfg Config

	// opts, denetleyici yapılandırma seçenekleridir.
	opts options

	// session, log satırlarını eşleştirmek için oturum kimliğidir.
	session string

	// totalLeds, şerit sayısı × şerit başına LED'dir. Her tam kare
	// yazımında kare uzunluğu bu değerle doğrulanır.
	totalLeds int

	// mu, bağlantı ve protokol durumu için mutex'tir.
	mu sync.Mutex

	// writeMu, transport yazma işlemleri için mutex'tir.
	// Aynı anda birden fazla goroutine yazmasını engeller.
	writeMu sync.Mutex

	// statsMu, telemetri sayaçlarını korur. Ayrı bir kilittir ki çok
	// cihazlı denetleyici, gönderimi süren bir cihaza yanıtsızlık hatası
	// yazabilsin.
	statsMu sync.Mutex

	// transport, cihaza açılan bağlantıdır. Bu denetleyiciye özeldir.
	transport Transport

	// connected, bağlantı durumunu gösterir.
	connected bool

	// brightness, cihaza en son gönderilen parlaklık değeridir.
	// -1, henüz hiç gönderilmediğini belirtir.
	brightness int

	// configSent, yapılandırmanın en az bir kez gönderildiğini belirtir.
	configSent bool

	// lastSentConfig, en son gönderilen (şerit sayısı, şerit başına LED)
	// ikilisidir. Değişmeden yeniden gönderim bant genişliği israfıdır ve
	// cihaz tarafında kararmaya yol açabilir.
	lastSentConfig configTuple

	// lastConfigPush, son yapılandırma gönderiminin zamanıdır.
	lastConfigPush time.Time

	// Kümülatif telemetri sayaçları (statsMu ile korunur).
	framesSent         int64
	bytesSent          int64
	errorCount         int64
	lastFrameDuration  time.Duration
	totalFrameDuration time.Duration
}

// configTuple, cihaza bildirilen şerit düzenini temsil eder.
type configTuple struct {
	stripCount   int
	ledsPerStrip int
}

// Open, cihaza bağlantı açar ve denetleyiciyi hazırlar.
//
// Açılış adımları:
//  1. Seri port açılır (veya WithTransport ile verilen transport kullanılır).
//     Port açılamazsa ErrTransportUnavailable döner.
//  2. Cihazın önyükleme çıktısı atılır.
//  3. PING el sıkışması gönderilir. Yanıt gelmemesi ölümcül değildir;
//     cihaz hâlâ önyüklemede olabilir, loglanır ve devam edilir.
func Open(cfg Config, opt ...Option) (*Controller, error) {
	cfg.applyDefaults()

	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}

	c := &Controller{
		cfg:        cfg,
		opts:       opts,
		session:    uuid.New().String()[:8],
		totalLeds:  cfg.StripCount * cfg.LedsPerStrip,
		brightness: -1,
	}

	if opts.transport != nil {
		c.transport = opts.transport
	} else {
		t, err := OpenSerialTransport(cfg.Port, cfg.BaudRate)
		if err != nil {
			return nil, err
		}
		c.transport = t

		// Cihaz yeni takıldıysa önyüklemesini tamamlamasına izin ver
		if opts.bootDelay > 0 {
			time.Sleep(opts.bootDelay)
		}
	}
	c.connected = true

	c.logf("bağlantı açıldı: %s @ %d baud, %d şerit × %d LED",
		cfg.Port, cfg.BaudRate, cfg.StripCount, cfg.LedsPerStrip)

	c.handshake()

	return c, nil
}

// handshake, açılıştaki tanı amaçlı PING alışverişini yapar.
// Yanıt yokluğu hata değildir: cihaz önyüklemesini bitirmemiş olabilir ve
// asıl komutlar geldiğinde çalışmaya başlayacaktır.
func (c *Controller) handshake() {
	// Önyükleme çıktısını temizle
	_ = c.transport.Drain()
	_ = readResponses(c.transport, drainTimeout)

	if err := c.writePacket(buildPingPayload()); err != nil {
		c.logf("UYARI: PING gönderilemedi: %v", err)
		return
	}

	responses := readResponses(c.transport, handshakeTimeout)
	if len(responses) > 0 {
		c.logf("el sıkışma yanıtı: %s %q", responses[0].Code, responses[0].Message)
	} else {
		c.logf("PING yanıtı yok, devam ediliyor (cihaz hâlâ önyüklemede olabilir)")
	}
}

// buildPingPayload, PING komutunun veri bölümünü oluşturur.
func buildPingPayload() []byte {
	return []byte{byte(CmdPing)}
}

// Close, transport'u kapatır. Idempotent'tir: kapalı bir denetleyiciyi
// yeniden kapatmak hata değildir.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false

	if c.transport != nil {
		err := c.transport.Close()
		c.transport = nil
		if err != nil {
			return fmt.Errorf("transport kapatılamadı: %w", err)
		}
	}

	c.logf("bağlantı kapatıldı")
	return nil
}

// TotalLeds, cihazın toplam LED sayısını döner.
func (c *Controller) TotalLeds() int {
	return c.totalLeds
}

// InlineShow, SetAllPixels'in görüntüyü kendiliğinden güncelleyip
// güncellemediğini döner. True ise çağıranlar Show çağırmamalıdır.
func (c *Controller) InlineShow() bool {
	return c.opts.inlineShow
}

// ─── Veri Gönderme/Alma ─────────────────────────────────────────────────────────

// writePacket, veri bölümünü çerçeveleyip transport'a yazar.
// Yazma hataları hata sayacına işlenir; zaman aşımları ErrWriteTimeout
// olarak sarılır. Bu katman yeniden deneme yapmaz.
func (c *Controller) writePacket(payload []byte) error {
	pkt, err := encodePacket(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.transport == nil {
		return ErrNotConnected
	}

	c.statsMu.Lock()
	c.bytesSent += int64(len(pkt))
	c.statsMu.Unlock()

	if _, err := c.transport.Write(pkt); err != nil {
		c.addError()
		if os.IsTimeout(err) {
			return fmt.Errorf("%w: %v", ErrWriteTimeout, err)
		}
		return fmt.Errorf("paket yazılamadı: %w", err)
	}
	return nil
}

// refreshConfiguration, gerekiyorsa yapılandırmayı cihaza gönderir.
//
// Yapılandırma yalnızca şu durumlarda gönderilir: hiç gönderilmemişse,
// (şerit sayısı, şerit başına LED) ikilisi değişmişse veya son gönderimden
// bu yana yenileme aralığı geçmişse. Gereksiz gönderim cihaz tarafında
// ekranı karartabildiği için en aza indirilir; aralıklı yenileme ise
// cihazın yeniden bağlanma sonrasında da doğru yapılandırmaya eninde
// sonunda sahip olmasını garanti eder.
func (c *Controller) refreshConfiguration() error {
	now := time.Now()
	tuple := configTuple{c.cfg.StripCount, c.cfg.LedsPerStrip}

	if c.configSent && c.lastSentConfig == tuple &&
		now.Sub(c.lastConfigPush) < c.opts.configRefreshInterval {
		return nil
	}

	payload := buildConfigPayload(tuple.stripCount, tuple.ledsPerStrip, c.opts.debug)
	if err := c.writePacket(payload); err != nil {
		return err
	}

	responses := readResponses(c.transport, configResponseTimeout)
	if len(responses) > 0 {
		c.logf("yapılandırma gönderildi: %d şerit × %d LED, cihaz: %s %q",
			tuple.stripCount, tuple.ledsPerStrip, responses[0].Code, responses[0].Message)
	} else {
		c.logf("yapılandırma gönderildi: %d şerit × %d LED (yanıt yok)",
			tuple.stripCount, tuple.ledsPerStrip)
	}

	c.lastConfigPush = now
	c.lastSentConfig = tuple
	c.configSent = true
	return nil
}

// ─── Dahili Yardımcılar ─────────────────────────────────────────────────────────

// ensureConnected, bağlantının aktif olduğunu kontrol eder.
func (c *Controller) ensureConnected() error {
	if !c.connected || c.transport == nil {
		return ErrNotConnected
	}
	return nil
}

// addError, hata sayacını artırır.
func (c *Controller) addError() {
	c.statsMu.Lock()
	c.errorCount++
	c.statsMu.Unlock()
}

// noteUnresponsive, kare gönderimi fan-out süresi içinde tamamlanmayan
// cihaz için hata sayacını artırır. Çok cihazlı denetleyici tarafından,
// cihazın kendi gönderimi hâlâ sürerken çağrılabilir; bu yüzden yalnızca
// statsMu alınır.
func (c *Controller) noteUnresponsive() {
	c.addError()
}

// logf, yapılandırılmış logger varsa mesaj yazar.
func (c *Controller) logf(format string, v ...interface{}) {
	if c.opts.logger != nil {
		c.opts.logger.Printf("[ledgrid "+c.session+"] "+format, v...)
	}
}
