package ledgrid

import (
	"encoding/binary"
	"strings"
	"time"
)

// ─── Paket Oluşturma ────────────────────────────────────────────────────────────
//
// Bu dosya, LED ızgara firmware'inin binary seri protokolü için düşük
// seviyeli paket oluşturma ve çözme fonksiyonlarını içerir.
//
// Paket Genel Formatı:
//   [1B] START = 0xAA
//   [2B] veri uzunluğu (LE, 0..65535)
//   [NB] veri (veri[0] her zaman komut byte'ıdır)
//   [1B] END = 0x55
//
// Bu format firmware ile bit düzeyinde sabitlenmiş sözleşmedir ve firmware
// koordinasyonu olmadan değiştirilemez.

// encodePacket, veri bölümünü START/uzunluk/END çerçevesine sarar.
// Veri 65535 byte'ı aşarsa ErrPayloadTooLarge döner.
//
// Örnek: PING komutu (veri = [0xFF]) şu paketi üretir:
//
//	AA 01 00 FF 55
func encodePacket(payload []byte) ([]byte, error) {
	if len(payload) > maxPayloadLength {
		return nil, ErrPayloadTooLarge
	}

	pkt := make([]byte, 0, len(payload)+4)
	pkt = append(pkt, packetStart)
	pkt = append(pkt, byte(len(payload)&0xFF), byte(len(payload)>>8))
	pkt = append(pkt, payload...)
	pkt = append(pkt, packetEnd)
	return pkt, nil
}

// buildSetPixelPayload, tek piksel komutunun veri bölümünü oluşturur.
//
// Veri Formatı (6 byte):
//
//	[1B] komut = 0x01
//	[2B] piksel index (big-endian)
//	[3B] R, G, B
func buildSetPixelPayload(index int, c Color) []byte {
	return []byte{
		byte(CmdSetPixel),
		byte(index >> 8), byte(index & 0xFF),
		c.R, c.G, c.B,
	}
}

// buildBrightnessPayload, global parlaklık komutunun veri bölümünü oluşturur.
func buildBrightnessPayload(value uint8) []byte {
	return []byte{byte(CmdSetBrightness), value}
}

// buildSetAllPayload, tüm kareyi taşıyan komutun veri bölümünü oluşturur.
// Her piksel kare sırasında 3 byte (R, G, B) olarak yazılır.
func buildSetAllPayload(frame Frame) []byte {
	payload := make([]byte, 0, 1+3*len(frame))
	payload = append(payload, byte(CmdSetAll))
	for _, c := range frame {
		payload = append(payload, c.R, c.G, c.B)
	}
	return payload
}

// buildConfigPayload, şerit düzeni komutunun veri bölümünü oluşturur.
//
// Veri Formatı (5 byte):
//
//	[1B] komut = 0x07
//	[1B] şerit sayısı
//	[1B] şerit başına LED, yüksek byte
//	[1B] şerit başına LED, düşük byte
//	[1B] debug bayrağı (0/1)
//
// Örnek: 8 şerit × 140 LED, debug kapalı → 07 08 00 8C 00
func buildConfigPayload(stripCount, ledsPerStrip int, debug bool) []byte {
	debugByte := byte(0)
	if debug {
		debugByte = 1
	}
	return []byte{
		byte(CmdConfig),
		byte(stripCount),
		byte(ledsPerStrip >> 8), byte(ledsPerStrip & 0xFF),
		debugByte,
	}
}

// buildRangePayload, aralık komutunun veri bölümünü oluşturur. Aralık
// verisinin biçimi firmware sözleşmesine bırakılmıştır; olduğu gibi iletilir.
func buildRangePayload(args []byte) []byte {
	payload := make([]byte, 0, 1+len(args))
	payload = append(payload, byte(CmdSetRange))
	return append(payload, args...)
}

// ─── Yanıt Çözme ────────────────────────────────────────────────────────────────

// readPacket, transport'tan tek bir paketin veri bölümünü okur.
//
// Seri hatlarda paket sınırı yoktur: tek bir byte kaybı akışı kaydırır.
// Bu yüzden çözücü sabit boyutlu okuma yapmaz, tarayarak ilerler:
//
//  1. START byte'ı bulunana kadar gelen byte'lar atılır.
//  2. 2 byte'lık uzunluk okunur; maxLen'i aşıyorsa bozulma sayılır ve
//     tarama kaldığı yerden sürer.
//  3. Tam olarak uzunluk kadar veri okunur (kısmi okumalarda deadline'a
//     kadar yeniden denenir).
//  4. Sonraki byte END değilse paket atılır ve tarama sürer.
//
// Geçerli bir paket bulunamadan deadline dolarsa errNoResponse döner.
func readPacket(t Transport, deadline time.Time, maxLen int) ([]byte, error) {
	var b [1]byte
	var lenBuf [2]byte

	for time.Now().Before(deadline) {
		// START arayarak senkronize ol
		n, err := t.Read(b[:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errNoResponse
		}
		if b[0] != packetStart {
			continue
		}

		if err := readFull(t, lenBuf[:], deadline); err != nil {
			return nil, err
		}
		payloadLen := int(binary.LittleEndian.Uint16(lenBuf[:]))
		if payloadLen > maxLen {
			// Uzunluk alanı mantıklı değil: bozuk paket, taramaya dön
			continue
		}

		payload := make([]byte, payloadLen)
		if err := readFull(t, payload, deadline); err != nil {
			return nil, err
		}

		if err := readFull(t, b[:], deadline); err != nil {
			return nil, err
		}
		if b[0] != packetEnd {
			// END eşleşmedi: kısmen okunan paket atılır
			continue
		}

		return payload, nil
	}

	return nil, errNoResponse
}

// readFull, buf dolana kadar okumayı deadline sınırı içinde yineler.
// Transport zaman aşımında (0, nil) dönebilir; bu da errNoResponse sayılır.
func readFull(t Transport, buf []byte, deadline time.Time) error {
	off := 0
	for off < len(buf) {
		if !time.Now().Before(deadline) {
			return errNoResponse
		}
		n, err := t.Read(buf[off:])
		if err != nil {
			return err
		}
		if n == 0 {
			return errNoResponse
		}
		off += n
	}
	return nil
}

// readResponse, transport'tan tek bir yanıt paketi okur ve ayrıştırır.
// Veri bölümü boş paketler yanıt taşımaz ve atlanır.
func readResponse(t Transport, timeout time.Duration) (*Response, error) {
	if err := t.SetReadTimeout(timeout); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		payload, err := readPacket(t, deadline, maxResponsePayload)
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 {
			continue
		}
		return parseResponse(payload), nil
	}

	return nil, errNoResponse
}

// readResponses, kuyrukta bekleyen tüm yanıtları toplar. İlk yanıt için
// timeout, sonrakiler için kısa bir ek süre beklenir. Hiç yanıt yoksa boş
// liste döner; yanıt yokluğu bir hata değildir.
func readResponses(t Transport, timeout time.Duration) []*Response {
	var responses []*Response
	for {
		r, err := readResponse(t, timeout)
		if err != nil {
			return responses
		}
		responses = append(responses, r)
		timeout = followupResponseTimeout
	}
}

// parseResponse, yanıt paketinin veri bölümünü ayrıştırır.
// veri[0] yanıt kodudur, veri[1:] UTF-8 tanı mesajıdır. Geçersiz UTF-8
// dizileri U+FFFD ile değiştirilir; çözücü hiçbir girdiyle çökmez.
func parseResponse(payload []byte) *Response {
	r := &Response{Code: ResponseCode(payload[0])}
	if len(payload) > 1 {
		r.Message = strings.ToValidUTF8(string(payload[1:]), "�")
	}
	return r
}
