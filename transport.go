package ledgrid

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// ─── Transport Arayüzü ──────────────────────────────────────────────────────────

// Transport, bir cihazla paket alışverişi yapılan noktadan noktaya bağlantıyı
// soyutlar. Her transport tek bir denetleyiciye aittir; aynı transport'a
// birden fazla goroutine'in eşzamanlı yazması yasaktır.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout, tek bir Read çağrısının en fazla ne kadar
	// bloklanacağını ayarlar. Zaman aşımında Read (0, nil) döner.
	SetReadTimeout(d time.Duration) error

	// Drain, alım tamponunda bekleyen byte'ları atar. Açılışta cihazın
	// önyükleme çıktısını temizlemek için kullanılır.
	Drain() error
}

// ─── Seri Transport ─────────────────────────────────────────────────────────────

// serialTransport, USB-CDC seri port üzerinden çalışan transport'tur.
// Üretimde kullanılan yol budur.
type serialTransport struct {
	port serial.Port
}

// OpenSerialTransport, belirtilen seri portu açar ve giriş/çıkış
// tamponlarını temizler. Port açılamazsa ErrTransportUnavailable döner.
func OpenSerialTransport(portName string, baudRate int) (Transport, error) {
	mode := &serial.Mode{BaudRate: baudRate}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransportUnavailable, portName, err)
	}

	// Önceki oturumdan kalan veriyi temizle
	_ = port.ResetInputBuffer()
	_ = port.ResetOutputBuffer()

	return &serialTransport{port: port}, nil
}

func (t *serialTransport) Read(p []byte) (int, error) {
	return t.port.Read(p)
}

func (t *serialTransport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

func (t *serialTransport) SetReadTimeout(d time.Duration) error {
	return t.port.SetReadTimeout(d)
}

func (t *serialTransport) Drain() error {
	return t.port.ResetInputBuffer()
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}

// ─── SPI Transport ──────────────────────────────────────────────────────────────

// hostInitOnce, periph host katmanının süreç başına bir kez kurulmasını sağlar.
var (
	hostInitOnce sync.Once
	hostInitErr  error
)

// spiTransport, SPI veri yolu üzerinden çalışan transport'tur. Her cihaz
// kendi chip-select hattıyla ayrı bir SPI portuna bağlanır. SPI okumaları
// bloklamaz; yanıt byte'ları saat verilerek alınır.
type spiTransport struct {
	port spi.PortCloser
	conn spi.Conn
}

// OpenSPITransport, belirtilen SPI portunu açar (ör: "/dev/spidev0.0").
// Seri transport'la aynı paket protokolü SPI üzerinde de çalışır; bu yol
// USB yerine SPI kablolaması kullanılan kurulumlar içindir.
func OpenSPITransport(portName string, freq physic.Frequency, mode spi.Mode) (Transport, error) {
	hostInitOnce.Do(func() {
		_, hostInitErr = host.Init()
	})
	if hostInitErr != nil {
		return nil, fmt.Errorf("%w: periph host: %v", ErrTransportUnavailable, hostInitErr)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransportUnavailable, portName, err)
	}

	conn, err := port.Connect(freq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrTransportUnavailable, portName, err)
	}

	return &spiTransport{port: port, conn: conn}, nil
}

func (t *spiTransport) Read(p []byte) (int, error) {
	// SPI'da okuma, sıfır byte'lar yazılarak saat üretilmesiyle yapılır
	if err := t.conn.Tx(make([]byte, len(p)), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *spiTransport) Write(p []byte) (int, error) {
	if err := t.conn.Tx(p, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *spiTransport) SetReadTimeout(d time.Duration) error {
	// SPI okumaları bloklamaz; zaman aşımı kavramı yoktur
	return nil
}

func (t *spiTransport) Drain() error {
	return nil
}

func (t *spiTransport) Close() error {
	return t.port.Close()
}
