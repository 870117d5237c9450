package ledgrid

import (
	"errors"
	"fmt"
	"time"
)

// ─── Protokol Sabitleri ─────────────────────────────────────────────────────────

const (
	// DefaultPort, denetleyici kartının varsayılan USB-CDC seri portudur
	// (Raspberry Pi üzerinde Linux varsayılanı).
	DefaultPort = "/dev/ttyACM0"

	// DefaultBaudRate, üretim kullanımı için varsayılan baud hızıdır.
	// 120+ FPS kare hızı için gereklidir; firmware tarafıyla aynı olmalıdır.
	DefaultBaudRate = 921600

	// BringUpBaudRate, ilk devreye alma ve kablolama testleri sırasında
	// kullanılan düşük baud hızıdır.
	BringUpBaudRate = 115200

	// DefaultStripCount, varsayılan şerit sayısıdır.
	// 2 adet XIAO S3 kartı × 7 şerit (D0-D6) düzenine karşılık gelir.
	DefaultStripCount = 14

	// DefaultLedsPerStrip, şerit başına varsayılan LED sayısıdır.
	DefaultLedsPerStrip = 140

	// DefaultStripsPerDevice, çok cihazlı kurulumda cihaz başına varsayılan
	// şerit sayısıdır (XIAO S3 D0-D6 pinleri).
	DefaultStripsPerDevice = 7

	// DefaultTimeout, seri port okuma işlemleri için varsayılan zaman aşımıdır.
	DefaultTimeout = 500 * time.Millisecond

	// DefaultConfigRefreshInterval, yapılandırmanın cihaza yeniden gönderilme
	// aralığıdır. Çok sık gönderim cihaz tarafında ekranın kararmasına yol
	// açtığı için düşük tutulur.
	DefaultConfigRefreshInterval = 30 * time.Second

	// DefaultFanoutTimeout, çok cihazlı paralel gönderimde tüm cihazların
	// tamamlanması için beklenen üst süredir. Süreyi aşan cihaz o kare için
	// terk edilir; böylece tek bir takılan cihaz tüm kareyi kilitleyemez.
	DefaultFanoutTimeout = 1 * time.Second

	// DefaultBootDelay, seri port açıldıktan sonra cihazın önyüklemesini
	// tamamlaması için beklenen süredir.
	DefaultBootDelay = 500 * time.Millisecond
)

const (
	// packetStart, her paketin ilk byte'ıdır.
	packetStart = 0xAA

	// packetEnd, her paketin son byte'ıdır.
	packetEnd = 0x55

	// maxPayloadLength, tek pakette taşınabilecek maksimum veri boyutudur.
	// Paket başlığındaki 2 byte'lık uzunluk alanının üst sınırıdır.
	maxPayloadLength = 65535

	// maxResponsePayload, cihaz yanıtları için kabul edilen en büyük veri
	// boyutudur. Bunu aşan uzunluk alanı bozulma sayılır ve tarayıcı
	// yeniden senkronizasyona döner.
	maxResponsePayload = 1024

	// bringUpFrameCount, açılıştan sonra yanıtların eşzamanlı okunup
	// loglandığı kare sayısıdır (devreye alma penceresi).
	bringUpFrameCount = 3

	// handshakeTimeout, açılıştaki PING el sıkışma yanıtı için bekleme süresidir.
	handshakeTimeout = 1 * time.Second

	// drainTimeout, açılışta cihazın önyükleme çıktısını atmak için
	// kullanılan okuma süresidir.
	drainTimeout = 500 * time.Millisecond

	// configResponseTimeout, CONFIG komutunun yanıtı için bekleme süresidir.
	configResponseTimeout = 200 * time.Millisecond

	// bringUpResponseTimeout, devreye alma penceresindeki kare yanıtları
	// için bekleme süresidir.
	bringUpResponseTimeout = 100 * time.Millisecond

	// followupResponseTimeout, bir yanıt okunduktan sonra kuyrukta bekleyen
	// ek yanıtlar için kullanılan kısa süredir.
	followupResponseTimeout = 50 * time.Millisecond
)

// ─── Komut Tipleri ──────────────────────────────────────────────────────────────

// Command, firmware protokolündeki komut tiplerini temsil eder.
// Her paketin veri bölümünün ilk byte'ı komut tipini belirtir.
type Command byte

const (
	// CmdSetPixel, tek bir pikselin rengini ayarlar.
	// Veri: [2B piksel index BE][R][G][B]
	CmdSetPixel Command = 0x01

	// CmdSetBrightness, global parlaklığı ayarlar.
	// Veri: [1B parlaklık 0-255]
	CmdSetBrightness Command = 0x02

	// CmdShow, bekleyen piksel değişikliklerini ekrana yansıtır.
	CmdShow Command = 0x03

	// CmdClear, tüm LED'leri söndürür ve hemen gösterir.
	CmdClear Command = 0x04

	// CmdSetRange, bir piksel aralığını ayarlar. Veri biçimi firmware'e
	// özgüdür; bu katman veriyi olduğu gibi iletir.
	CmdSetRange Command = 0x05

	// CmdSetAll, tüm pikselleri tek pakette ayarlar ve gösterir.
	// Veri: kare sırasında her piksel için [R][G][B]
	CmdSetAll Command = 0x06

	// CmdConfig, şerit düzenini cihaza bildirir.
	// Veri: [1B şerit sayısı][1B LED sayısı yüksek][1B LED sayısı düşük][1B debug 0/1]
	CmdConfig Command = 0x07

	// CmdPing, bağlantı testi için gönderilir. Cihaz PONG ile yanıtlar.
	CmdPing Command = 0xFF
)

// String, Command'ın okunabilir string temsilini döner.
func (c Command) String() string {
	switch c {
	case CmdSetPixel:
		return "SetPixel"
	case CmdSetBrightness:
		return "SetBrightness"
	case CmdShow:
		return "Show"
	case CmdClear:
		return "Clear"
	case CmdSetRange:
		return "SetRange"
	case CmdSetAll:
		return "SetAll"
	case CmdConfig:
		return "Config"
	case CmdPing:
		return "Ping"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(c))
	}
}

// ─── Yanıt Kodları ──────────────────────────────────────────────────────────────

// ResponseCode, cihazdan dönen yanıt paketlerinin ilk byte'ıdır.
// 0x00 dışındaki her değer cihaz tarafında raporlanan bir hatadır.
type ResponseCode byte

const (
	// RespOK, komutun başarıyla işlendiğini belirtir.
	RespOK ResponseCode = 0x00

	// RespError, cihaz tarafında bir hata oluştuğunu belirtir.
	// Yanıt mesajı hata ayrıntısını taşır (ör: "SIZE_MISMATCH").
	RespError ResponseCode = 0x01

	// RespStatus, istek dışı durum bildirimidir.
	RespStatus ResponseCode = 0x02
)

// String, ResponseCode'un okunabilir temsilini döner.
func (r ResponseCode) String() string {
	switch r {
	case RespOK:
		return "OK"
	case RespError:
		return "ERROR"
	case RespStatus:
		return "STATUS"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(r))
	}
}

// Response, cihazdan okunan tek bir yanıt paketini temsil eder.
type Response struct {
	// Code, yanıt kodudur. RespOK dışındaki değerler hatadır.
	Code ResponseCode

	// Message, UTF-8 tanı mesajıdır. Geçersiz byte dizileri U+FFFD ile
	// değiştirilir; yanıt çözücü hiçbir girdiyle çökmez.
	Message string
}

// ─── Hatalar ────────────────────────────────────────────────────────────────────

var (
	// ErrTransportUnavailable, seri portun açılamadığını belirtir.
	// Yalnızca ilgili cihaz için ölümcüldür; çok cihazlı kurulumda diğer
	// cihazlar çalışmaya devam edebilir.
	ErrTransportUnavailable = errors.New("seri port açılamadı")

	// ErrWriteTimeout, bir yazma işleminin zaman aşımına uğradığını belirtir.
	// O kare ilgili cihaz için kaybedilir; bu katman yeniden denemez.
	ErrWriteTimeout = errors.New("yazma zaman aşımı")

	// ErrFrameSizeMismatch, çağıranın yanlış uzunlukta kare verdiğini belirtir.
	// Kısmi gönderim yapılmaz; çağıranın düzeltmesi gereken yapısal bir hatadır.
	ErrFrameSizeMismatch = errors.New("kare uzunluğu uyumsuz")

	// ErrPayloadTooLarge, paket verisinin 65535 byte sınırını aştığını belirtir.
	ErrPayloadTooLarge = errors.New("paket verisi çok büyük")

	// ErrNotConnected, kapalı bir denetleyici üzerinde işlem yapıldığını belirtir.
	ErrNotConnected = errors.New("cihaz bağlı değil")

	// errNoResponse, okuma süresi içinde geçerli bir yanıt paketi
	// bulunamadığını belirtir. Yanıtlar isteğe bağlı tanı verisi olduğu
	// için bu hata dışarıya yansıtılmaz.
	errNoResponse = errors.New("yanıt alınamadı")
)

// ─── Veri Yapıları ──────────────────────────────────────────────────────────────

// Color, bir pikselin 8 bit'lik üç renk kanalını tutar.
// Kanal değerleri çağıran tarafından [0,255] aralığına getirilmiş olmalıdır;
// bu katman değerleri olduğu gibi iletir.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// Frame, tüm ızgaranın tek bir kare anlık görüntüsüdür.
// Uzunluğu tam olarak şerit sayısı × şerit başına LED olmalıdır.
// i indeksi, i/ledsPerStrip şeridindeki i%ledsPerStrip LED'ine karşılık gelir.
type Frame []Color

// Stats, bir cihaz denetleyicisinin kümülatif telemetri sayaçlarını taşır.
type Stats struct {
	TotalLeds         int           // Cihazın toplam LED sayısı
	FramesSent        int64         // Gönderilen kare sayısı
	BytesSent         int64         // Yazılan toplam byte sayısı
	Errors            int64         // Yazma hataları + yanıtsız kalma sayısı
	LastFrameDuration time.Duration // Son karenin gönderim süresi
	AvgFrameDuration  time.Duration // Ortalama kare süresi (frames=0 ise 0)
	TheoreticalFPS    float64       // 1/ortalama (tanımsızsa 0)
}

// String, istatistiklerin okunabilir özetini döner.
func (s Stats) String() string {
	return fmt.Sprintf(
		"kareler=%d byte=%d hata=%d son=%.2fms ort=%.2fms fps=%.1f",
		s.FramesSent, s.BytesSent, s.Errors,
		float64(s.LastFrameDuration)/float64(time.Millisecond),
		float64(s.AvgFrameDuration)/float64(time.Millisecond),
		s.TheoreticalFPS,
	)
}

// AggregateStats, çok cihazlı denetleyicinin cihaz başına ve toplu
// istatistiklerini taşır.
type AggregateStats struct {
	// Devices, cihaz sırasına göre istatistik listesidir.
	// Açılamayan cihazların girdisi sıfır değerlidir.
	Devices []Stats

	// Aggregate, toplu istatistiktir: sayaçlar toplanır,
	// LastFrameDuration cihazların en yavaşıdır, AvgFrameDuration kare
	// sayısıyla ağırlıklı ortalamadır.
	Aggregate Stats
}

// ─── Yapılandırma ───────────────────────────────────────────────────────────────

// Config, tek bir cihaz denetleyicisinin yapılandırmasıdır.
// Sıfır değerli alanlar varsayılanlarla doldurulur.
type Config struct {
	Port         string // Seri port (varsayılan: DefaultPort)
	BaudRate     int    // Baud hızı (varsayılan: DefaultBaudRate)
	StripCount   int    // Şerit sayısı (varsayılan: DefaultStripCount)
	LedsPerStrip int    // Şerit başına LED (varsayılan: DefaultLedsPerStrip)
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.StripCount == 0 {
		c.StripCount = DefaultStripCount
	}
	if c.LedsPerStrip == 0 {
		c.LedsPerStrip = DefaultLedsPerStrip
	}
}

// MultiConfig, çok cihazlı denetleyicinin yapılandırmasıdır.
// Cihaz sayısı Ports uzunluğundan türetilir ve çalışma zamanında değişmez;
// cihaz eklemek/çıkarmak yeniden kurulum gerektirir.
type MultiConfig struct {
	Ports           []string // Cihaz sırasına göre seri portlar
	BaudRate        int      // Baud hızı (varsayılan: DefaultBaudRate)
	StripsPerDevice int      // Cihaz başına şerit (varsayılan: DefaultStripsPerDevice)
	LedsPerStrip    int      // Şerit başına LED (varsayılan: DefaultLedsPerStrip)
	Parallel        bool     // Kareleri cihazlara paralel gönder
}

func (c *MultiConfig) applyDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.StripsPerDevice == 0 {
		c.StripsPerDevice = DefaultStripsPerDevice
	}
	if c.LedsPerStrip == 0 {
		c.LedsPerStrip = DefaultLedsPerStrip
	}
}

// ─── Seçenek Yapıları ───────────────────────────────────────────────────────────

// Option, denetleyici yapılandırma seçeneklerini tanımlar.
// Functional Options pattern kullanılır.
type Option func(*options)

type options struct {
	timeout               time.Duration
	configRefreshInterval time.Duration
	fanoutTimeout         time.Duration
	bootDelay             time.Duration
	debug                 bool
	inlineShow            bool
	logger                Logger
	transport             Transport
	transports            []Transport
}

func defaultOptions() options {
	return options{
		timeout:               DefaultTimeout,
		configRefreshInterval: DefaultConfigRefreshInterval,
		fanoutTimeout:         DefaultFanoutTimeout,
		bootDelay:             DefaultBootDelay,
		inlineShow:            true,
	}
}

// WithTimeout, seri port okuma işlemleri için zaman aşımını ayarlar.
//
//	ctrl, err := ledgrid.Open(cfg, ledgrid.WithTimeout(time.Second))
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithConfigRefreshInterval, yapılandırmanın periyodik yeniden gönderim
// aralığını ayarlar. Varsayılan 30 saniyedir; daha kısa aralık cihaz
// tarafında görünür kararmalara yol açabilir.
func WithConfigRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		o.configRefreshInterval = d
	}
}

// WithFanoutTimeout, çok cihazlı paralel gönderimde kare başına bekleme
// süresini ayarlar. Süreyi aşan cihaz o kare için terk edilir.
func WithFanoutTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fanoutTimeout = d
	}
}

// WithBootDelay, seri port açıldıktan sonra cihaz önyüklemesi için
// beklenecek süreyi ayarlar. WithTransport ile verilen hazır
// transport'larda uygulanmaz.
func WithBootDelay(d time.Duration) Option {
	return func(o *options) {
		o.bootDelay = d
	}
}

// WithDebug, cihaz tarafı debug çıktısını (CONFIG paketindeki debug
// bayrağı) ve ayrıntılı kare loglarını etkinleştirir.
func WithDebug(enabled bool) Option {
	return func(o *options) {
		o.debug = enabled
	}
}

// WithInlineShow, SetAllPixels'in cihazda görüntüyü kendiliğinden
// güncelleyip güncellemediğini belirtir. Varsayılan true'dur; bu durumda
// çağıranlar ayrıca Show çağırmamalıdır.
func WithInlineShow(enabled bool) Option {
	return func(o *options) {
		o.inlineShow = enabled
	}
}

// WithLogger, özel bir loglama arayüzü ayarlar.
// Varsayılan olarak loglama devre dışıdır.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTransport, seri port yerine hazır bir Transport kullanılmasını
// sağlar (ör: SPI transport veya testlerde sahte transport). Yalnızca
// tekil denetleyiciler içindir; çok cihazlı kurulumda WithTransports
// kullanın.
func WithTransport(t Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithTransports, çok cihazlı denetleyicide cihaz sırasına göre hazır
// Transport'lar verir. Listede karşılığı olmayan cihazlar için seri port
// açılır.
func WithTransports(ts []Transport) Option {
	return func(o *options) {
		o.transports = ts
	}
}

// ─── Logger Arayüzü ─────────────────────────────────────────────────────────────

// Logger, kütüphanenin loglama arayüzüdür.
// stdlib log paketi veya zerolog/zap gibi kütüphanelerle uyumludur.
type Logger interface {
	// Printf, formatlanmış bir log mesajı yazar.
	Printf(format string, v ...interface{})
}
