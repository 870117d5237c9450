// Package ledgrid provides the device communication layer for driving large
// arrays of addressable LED strips attached to microcontroller boards over a
// point-to-point serial transport.
//
// # Overview
//
// A host process computes frames (one color per LED) and ships them to one
// or more controller boards using a compact binary packet protocol. This
// package implements that protocol, a per-device transport controller that
// keeps protocol state across frames (cached configuration, cached
// brightness, telemetry counters), and a multi-device fan-out controller
// that partitions a single logical frame across N boards and transmits in
// parallel under a bounded latency.
//
// Frame production (animations, simulations) and scheduling are external
// collaborators: they only need to hand this package an ordered sequence of
// colors once per render tick.
//
// # Protocol Architecture
//
// Every packet on the wire uses the same framing:
//
//	[0xAA] [2B payload length LE] [payload] [0x55]
//
// payload[0] is the command byte (SET_ALL, SET_BRIGHTNESS, CONFIG, PING,
// ...). Responses use the same framing with a response code in payload[0]
// and a UTF-8 diagnostic string in payload[1:]. Serial lines have no packet
// boundaries, so the response decoder scans for the start marker and
// resynchronizes after any corruption without manual restart.
//
// # Connection Flow
//
//  1. The serial port is opened (default 921600 baud) and boot-time chatter
//     is drained.
//  2. A PING handshake is sent; a missing response is logged but not fatal,
//     since the board may still be booting.
//  3. The strip layout (CONFIG) is pushed lazily with the first frame and
//     refreshed at most every 30 seconds, because redundant pushes can
//     blank the display.
//
// # Quick Start
//
//	ctrl, err := ledgrid.Open(ledgrid.Config{
//	    Port:         "/dev/ttyACM0",
//	    StripCount:   7,
//	    LedsPerStrip: 140,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctrl.Close()
//
//	frame := make(ledgrid.Frame, ctrl.TotalLeds())
//	for i := range frame {
//	    frame[i] = ledgrid.Color{R: 255}
//	}
//	err = ctrl.SetAllPixels(frame)
//
// For grids spanning several boards, OpenMulti splits each frame across the
// devices and sends the sub-frames concurrently:
//
//	grid, err := ledgrid.OpenMulti(ledgrid.MultiConfig{
//	    Ports:    []string{"/dev/ttyACM0", "/dev/ttyACM1"},
//	    Parallel: true,
//	})
//
// # Failure Model
//
// Errors local to one device never interrupt the others: write failures and
// fan-out timeouts are absorbed into that device's error counter and become
// visible through Stats. The one exception is ErrFrameSizeMismatch, which
// always propagates because it is a structural bug in the caller.
//
// # Thread Safety
//
// Controller and MultiController are thread-safe. Each device's transport is
// exclusively owned by its controller; the parallel fan-out guarantees one
// goroutine per device per frame, and that concurrency lives only for the
// duration of a single SetAllPixels call.
package ledgrid
