package ledgrid

import (
	"errors"
	"fmt"
	"time"
)

// MultiController, birden fazla LED denetleyici kartını tek bir mantıksal
// ızgara gibi yöneten yapıdır. Global kare, cihaz sırasına göre ardışık
// şerit bloklarına bölünür ve her cihaza kendi alt karesi gönderilir.
//
// Her cihazın transport'u yalnızca o cihazın denetleyicisine aittir;
// paralel gönderimde cihaz başına tam olarak bir goroutine çalışır, iki
// goroutine asla aynı transport'a dokunmaz. Cihaz sınırları arasında
// paylaşılan değişken durum yoktur.
//
// Kullanım:
//
//	grid, err := ledgrid.OpenMulti(ledgrid.MultiConfig{
//	    Ports:    []string{"/dev/ttyACM0", "/dev/ttyACM1"},
//	    Parallel: true,
//	})
//	if err != nil {
//	    log.Printf("bazı cihazlar açılamadı: %v", err) // kalanlarla devam edilebilir
//	}
//	defer grid.Close()
//
//	grid.SetAllPixels(frame)
type MultiController struct {
	// cfg, ızgara düzeni ve port listesidir.
	cfg MultiConfig

	// opts, tüm cihazlara uygulanan seçeneklerdir.
	opts options

	// devices, cihaz sırasına göre denetleyicilerdir. Açılamayan cihazın
	// girdisi nil'dir ve tüm işlemlerde atlanır.
	devices []*Controller

	// Türetilmiş düzen değerleri.
	deviceCount   int
	totalLeds     int
	ledsPerDevice int
}

// OpenMulti, her port için bir cihaz denetleyicisi açar.
//
// Cihaz açılış hataları birbirinden bağımsızdır: her cihaz denenir,
// başarısızlıklar tek bir hata olarak birleştirilip döndürülür ve
// denetleyici açılabilen cihazlarla kullanılabilir durumda kalır.
// Hatayı yok sayan çağıran, eksik cihazlarla çalışmaya devam edebilir.
func OpenMulti(cfg MultiConfig, opt ...Option) (*MultiController, error) {
	cfg.applyDefaults()

	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}

	m := &MultiController{
		cfg:           cfg,
		opts:          opts,
		deviceCount:   len(cfg.Ports),
		totalLeds:     len(cfg.Ports) * cfg.StripsPerDevice * cfg.LedsPerStrip,
		ledsPerDevice: cfg.StripsPerDevice * cfg.LedsPerStrip,
	}

	var openErrs []error
	for i, port := range cfg.Ports {
		devOpts := append([]Option{}, opt...)
		if i < len(opts.transports) {
			devOpts = append(devOpts, WithTransport(opts.transports[i]))
		}

		dev, err := Open(Config{
			Port:         port,
			BaudRate:     cfg.BaudRate,
			StripCount:   cfg.StripsPerDevice,
			LedsPerStrip: cfg.LedsPerStrip,
		}, devOpts...)
		if err != nil {
			openErrs = append(openErrs, fmt.Errorf("cihaz %d (%s): %w", i, port, err))
			m.devices = append(m.devices, nil)
			continue
		}
		m.devices = append(m.devices, dev)
	}

	m.logf("çok cihazlı denetleyici hazır: %d cihaz × %d şerit × %d LED, paralel=%v",
		m.deviceCount, cfg.StripsPerDevice, cfg.LedsPerStrip, cfg.Parallel)

	return m, errors.Join(openErrs...)
}

// ─── Kare Dağıtımı ──────────────────────────────────────────────────────────────

// splitFrame, global kareyi cihaz başına alt karelere böler.
//
// d cihazı [d·S, (d+1)·S) aralığındaki global şeritlere sahiptir (S =
// cihaz başına şerit). Global kare yapılandırılan şerit sayısından kısa
// kalırsa eksik kısım siyahla doldurulur: bir cihazın toplam piksel
// sayısı donanımda sabittir ve her zaman tam uzunlukta yazım almalıdır.
// Kısaltma/dolgu yalnızca burada yapılır; cihaz denetleyicileri kare
// uzunluğunu katı biçimde doğrular.
func (m *MultiController) splitFrame(frame Frame) []Frame {
	deviceFrames := make([]Frame, m.deviceCount)

	for d := 0; d < m.deviceCount; d++ {
		sub := make(Frame, 0, m.ledsPerDevice)

		for s := 0; s < m.cfg.StripsPerDevice; s++ {
			globalStrip := d*m.cfg.StripsPerDevice + s
			start := globalStrip * m.cfg.LedsPerStrip
			end := start + m.cfg.LedsPerStrip

			switch {
			case start >= len(frame):
				// Şerit tamamen kare dışında: siyah dolgu
				sub = append(sub, make(Frame, m.cfg.LedsPerStrip)...)
			case end > len(frame):
				sub = append(sub, frame[start:]...)
				sub = append(sub, make(Frame, end-len(frame))...)
			default:
				sub = append(sub, frame[start:end]...)
			}
		}

		deviceFrames[d] = sub
	}

	return deviceFrames
}

// SetAllPixels, global kareyi böler ve tüm cihazlara gönderir.
//
// Paralel modda cihaz başına bir goroutine çalışır ve hepsinin bitmesi en
// fazla fan-out süresi kadar beklenir. Süreyi aşan cihaz o kare için terk
// edilir; gönderimi iptal edilmez, sonucu beklenmez ve yanıtsızlığı kendi
// hata sayacına işlenir. Böylece tek bir takılan transport toplam kare
// gecikmesini fan-out süresinin üzerine çıkaramaz.
//
// Tek bir cihazın gönderim hatası hiçbir zaman dışarı yayılmaz: hata o
// cihazın sayacına işlenir ve kareler diğer cihazlara ulaşmaya devam eder.
// Hatalar yalnızca Stats üzerinden görünür.
func (m *MultiController) SetAllPixels(frame Frame) {
	deviceFrames := m.splitFrame(frame)

	if m.cfg.Parallel && m.deviceCount > 1 {
		m.sendParallel(deviceFrames)
		return
	}
	m.sendSequential(deviceFrames)
}

type sendResult struct {
	device int
	err    error
}

func (m *MultiController) sendParallel(deviceFrames []Frame) {
	// Tamponlu kanal: terk edilen goroutine'ler sonuçlarını bloklanmadan
	// bırakıp sonlanabilir
	results := make(chan sendResult, m.deviceCount)

	launched := 0
	for d, dev := range m.devices {
		if dev == nil {
			continue
		}
		launched++
		go func(d int, dev *Controller, f Frame) {
			results <- sendResult{device: d, err: dev.SetAllPixels(f)}
		}(d, dev, deviceFrames[d])
	}

	done := make([]bool, m.deviceCount)
	timer := time.NewTimer(m.opts.fanoutTimeout)
	defer timer.Stop()

	for received := 0; received < launched; {
		select {
		case r := <-results:
			received++
			done[r.device] = true
			if r.err != nil {
				m.logf("cihaz %d kare gönderemedi: %v", r.device, r.err)
			}
		case <-timer.C:
			// Süre doldu: bitmeyen cihazlar bu kare için terk edilir
			for d, dev := range m.devices {
				if dev != nil && !done[d] {
					dev.noteUnresponsive()
					m.logf("cihaz %d %v içinde tamamlanmadı, kare terk edildi",
						d, m.opts.fanoutTimeout)
				}
			}
			return
		}
	}
}

func (m *MultiController) sendSequential(deviceFrames []Frame) {
	for d, dev := range m.devices {
		if dev == nil {
			continue
		}
		if err := dev.SetAllPixels(deviceFrames[d]); err != nil {
			// Bir cihazın hatası kalanların denenmesini engellemez
			m.logf("cihaz %d kare gönderemedi: %v", d, err)
		}
	}
}

// ─── Piksel ve Görüntü Komutları ────────────────────────────────────────────────

// SetPixel, global piksel indeksini (cihaz, yerel indeks) ikilisine
// çevirir ve ilgili cihaza iletir. Aralık dışı indeksler ve açılamayan
// cihazlara düşen pikseller sessizce yok sayılır.
func (m *MultiController) SetPixel(index int, color Color) {
	if index < 0 || index >= m.totalLeds {
		return
	}

	strip := index / m.cfg.LedsPerStrip
	led := index % m.cfg.LedsPerStrip

	device := strip / m.cfg.StripsPerDevice
	localStrip := strip % m.cfg.StripsPerDevice
	localIndex := localStrip*m.cfg.LedsPerStrip + led

	if device >= m.deviceCount || m.devices[device] == nil {
		return
	}
	if err := m.devices[device].SetPixel(localIndex, color); err != nil {
		m.logf("cihaz %d piksel %d ayarlanamadı: %v", device, localIndex, err)
	}
}

// SetBrightness, parlaklığı tüm cihazlara dağıtır. Cihaz başına hatalar
// loglanır ve kardeş cihazları etkilemez.
func (m *MultiController) SetBrightness(value uint8) {
	for d, dev := range m.devices {
		if dev == nil {
			continue
		}
		if err := dev.SetBrightness(value); err != nil {
			m.logf("cihaz %d parlaklık ayarlanamadı: %v", d, err)
		}
	}
}

// Clear, tüm cihazlardaki LED'leri söndürür.
func (m *MultiController) Clear() {
	for d, dev := range m.devices {
		if dev == nil {
			continue
		}
		if err := dev.Clear(); err != nil {
			m.logf("cihaz %d temizlenemedi: %v", d, err)
		}
	}
}

// Show, görüntü güncellemesini tüm cihazlara dağıtır. SetAllPixels
// görüntüyü kendiliğinden güncelliyorsa (varsayılan) hiçbir şey yapmaz.
func (m *MultiController) Show() {
	if m.opts.inlineShow {
		return
	}
	for d, dev := range m.devices {
		if dev == nil {
			continue
		}
		if err := dev.Show(); err != nil {
			m.logf("cihaz %d gösterilemedi: %v", d, err)
		}
	}
}

// Configure, tüm cihazlara yapılandırmayı hemen gönderir.
func (m *MultiController) Configure() {
	for d, dev := range m.devices {
		if dev == nil {
			continue
		}
		if err := dev.Configure(); err != nil {
			m.logf("cihaz %d yapılandırılamadı: %v", d, err)
		}
	}
}

// Close, tüm cihaz bağlantılarını kapatır. Idempotent'tir; cihaz başına
// hatalar birleştirilerek döndürülür.
func (m *MultiController) Close() error {
	var errs []error
	for d, dev := range m.devices {
		if dev == nil {
			continue
		}
		if err := dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cihaz %d: %w", d, err))
		}
	}
	return errors.Join(errs...)
}

// ─── Telemetri ──────────────────────────────────────────────────────────────────

// Stats, cihaz başına istatistikleri ve toplu istatistiği döner.
//
// Toplu değerde sayaçlar toplanır; LastFrameDuration cihazlar arasındaki
// en büyük değerdir (boru hattı en yavaş cihaz kadar hızlıdır) ve
// AvgFrameDuration kare sayısıyla ağırlıklı ortalamadır: cihazlar farklı
// sayıda kare işlemiş olabileceği için düz ortalama yanıltıcı olur.
func (m *MultiController) Stats() AggregateStats {
	var agg AggregateStats
	agg.Devices = make([]Stats, 0, m.deviceCount)

	var weightedSum float64
	var weightFrames int64

	for _, dev := range m.devices {
		if dev == nil {
			agg.Devices = append(agg.Devices, Stats{})
			continue
		}

		s := dev.Stats()
		agg.Devices = append(agg.Devices, s)

		agg.Aggregate.TotalLeds += s.TotalLeds
		agg.Aggregate.FramesSent += s.FramesSent
		agg.Aggregate.BytesSent += s.BytesSent
		agg.Aggregate.Errors += s.Errors
		if s.LastFrameDuration > agg.Aggregate.LastFrameDuration {
			agg.Aggregate.LastFrameDuration = s.LastFrameDuration
		}
		if s.FramesSent > 0 {
			weightedSum += float64(s.AvgFrameDuration) * float64(s.FramesSent)
			weightFrames += s.FramesSent
		}
	}

	if weightFrames > 0 {
		agg.Aggregate.AvgFrameDuration = time.Duration(weightedSum / float64(weightFrames))
		if agg.Aggregate.AvgFrameDuration > 0 {
			agg.Aggregate.TheoreticalFPS =
				float64(time.Second) / float64(agg.Aggregate.AvgFrameDuration)
		}
	}

	return agg
}

// ─── Düzen Bilgisi ──────────────────────────────────────────────────────────────

// TotalLeds, ızgaranın toplam LED sayısını döner.
func (m *MultiController) TotalLeds() int {
	return m.totalLeds
}

// StripCount, ızgaranın toplam şerit sayısını döner.
func (m *MultiController) StripCount() int {
	return m.deviceCount * m.cfg.StripsPerDevice
}

// DeviceCount, yapılandırılan cihaz sayısını döner.
func (m *MultiController) DeviceCount() int {
	return m.deviceCount
}

// logf, yapılandırılmış logger varsa mesaj yazar.
func (m *MultiController) logf(format string, v ...interface{}) {
	if m.opts.logger != nil {
		m.opts.logger.Printf("[ledgrid multi] "+format, v...)
	}
}
