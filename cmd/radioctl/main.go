// Command radioctl is a small TLV control-plane client: it builds a CMD
// packet from flags and either fires it at radiod's control socket
// (create/tune) or fires it and waits for a STATUS reply (query), the way
// a ka9q-radio-derived control client builds and sends its own command
// datagrams, adapted from that client's ad hoc encode calls onto our own
// internal/control.Builder/Tag types.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rjboer/godemod/internal/control"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "create", "tune":
		if err := runTune(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "radioctl:", err)
			os.Exit(1)
		}
	case "query":
		if err := runQuery(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "radioctl:", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: radioctl <create|tune|query> [flags]")
}

type tuneFlags struct {
	addr     string
	ssrc     uint
	freq     float64
	preset   string
	demod    string
	lowEdge  float64
	highEdge float64
	dest     string
}

func parseTuneFlags(args []string) (tuneFlags, error) {
	fs := flag.NewFlagSet("radioctl", flag.ContinueOnError)
	var f tuneFlags
	fs.StringVar(&f.addr, "addr", "239.1.2.3:5006", "Control socket, host:port")
	fs.UintVar(&f.ssrc, "ssrc", 0, "Channel ssrc (required, nonzero)")
	fs.Float64Var(&f.freq, "freq", 0, "Radio frequency in Hz")
	fs.StringVar(&f.preset, "preset", "", "Preset name to apply")
	fs.StringVar(&f.demod, "demod", "", "Demod type: linear|fm|wfm|spectrum")
	fs.Float64Var(&f.lowEdge, "low-edge", 0, "Filter low edge, Hz relative to freq")
	fs.Float64Var(&f.highEdge, "high-edge", 0, "Filter high edge, Hz relative to freq")
	fs.StringVar(&f.dest, "dest", "", "Per-channel PCM output destination, host:port")
	if err := fs.Parse(args); err != nil {
		return tuneFlags{}, err
	}
	if f.ssrc == 0 {
		return tuneFlags{}, fmt.Errorf("-ssrc is required and must be nonzero")
	}
	return f, nil
}

func runTune(args []string) error {
	f, err := parseTuneFlags(args)
	if err != nil {
		return err
	}

	b := control.NewBuilder(control.PacketCMD)
	b.PutInt32(control.OUTPUT_SSRC, uint32(f.ssrc))
	if f.freq != 0 {
		b.PutFloat64(control.RADIO_FREQUENCY, f.freq)
	}
	if f.preset != "" {
		b.PutString(control.PRESET, f.preset)
	}
	if f.demod != "" {
		b.PutInt32(control.DEMOD_TYPE, uint32(demodTypeTag(f.demod)))
	}
	if f.lowEdge != 0 {
		b.PutFloat64(control.LOW_EDGE, f.lowEdge)
	}
	if f.highEdge != 0 {
		b.PutFloat64(control.HIGH_EDGE, f.highEdge)
	}
	if f.dest != "" {
		if err := putSocket(b, control.OUTPUT_DATA_DEST_SOCKET, f.dest); err != nil {
			return err
		}
	}

	return sendCommand(f.addr, b.Bytes())
}

// demodTypeTag mirrors internal/control/presets.go's parseDemodType so the
// CLI and the daemon agree on the wire encoding of a demod type name.
func demodTypeTag(name string) int {
	switch name {
	case "fm":
		return 1
	case "wfm":
		return 2
	case "spectrum":
		return 3
	default:
		return 0
	}
}

func putSocket(b *control.Builder, tag control.Tag, hostport string) error {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return fmt.Errorf("invalid destination %q: %w", hostport, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("invalid destination host %q", host)
	}
	ip4 := ip.To4()
	family := byte(10)
	addr := []byte(ip)
	if ip4 != nil {
		family = 2
		addr = ip4
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return fmt.Errorf("invalid destination port %q: %w", portStr, err)
	}
	b.PutSocket(tag, family, addr, port)
	return nil
}

func sendCommand(addr string, packet []byte) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp4", nil, udpAddr)
	if err != nil {
		return fmt.Errorf("dial %q: %w", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write(packet); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("radioctl query", flag.ContinueOnError)
	addr := fs.String("addr", "239.1.2.3:5006", "Control socket, host:port")
	ssrc := fs.Uint("ssrc", 0, "Channel ssrc to query (required, nonzero)")
	timeout := fs.Duration("timeout", 2*time.Second, "Reply wait timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ssrc == 0 {
		return fmt.Errorf("-ssrc is required and must be nonzero")
	}

	udpAddr, err := net.ResolveUDPAddr("udp4", *addr)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", *addr, err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, udpAddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", *addr, err)
	}
	defer conn.Close()

	b := control.NewBuilder(control.PacketCMD)
	b.PutInt32(control.OUTPUT_SSRC, uint32(*ssrc))
	if _, err := conn.WriteToUDP(b.Bytes(), udpAddr); err != nil {
		return fmt.Errorf("send query: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(*timeout))
	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return fmt.Errorf("no status reply for ssrc %d within %s: %w", *ssrc, *timeout, err)
		}
		if n < 1 || buf[0] != control.PacketStatus {
			continue
		}
		tlvs, err := control.Parse(buf[1:n])
		if err != nil {
			continue
		}
		reported, ok := control.Find(tlvs, control.OUTPUT_SSRC)
		if !ok || control.DecodeInt32(reported) != uint32(*ssrc) {
			continue
		}
		printStatus(tlvs)
		return nil
	}
}

func printStatus(tlvs []control.TLV) {
	for _, t := range tlvs {
		switch t.Tag {
		case control.RADIO_FREQUENCY, control.FRONTEND_SAMPLE_RATE, control.FRONTEND_IF_POWER,
			control.SECOND_LO_FREQUENCY, control.SHIFT_FREQUENCY, control.PLL_PHASE:
			fmt.Printf("%-24s %v\n", t.Tag, control.DecodeFloat64(t.Value))
		case control.FM_SNR, control.FM_DEVIATION, control.PLL_SNR, control.AGC_GAIN:
			fmt.Printf("%-24s %v\n", t.Tag, control.DecodeFloat32(t.Value))
		case control.PRESET:
			fmt.Printf("%-24s %v\n", t.Tag, control.DecodeString(t.Value))
		case control.PLL_LOCKED:
			fmt.Printf("%-24s %v\n", t.Tag, control.DecodeBool(t.Value))
		case control.SPECTRUM_BIN_DATA:
			fmt.Printf("%-24s %d bins\n", t.Tag, len(t.Value)/8)
		default:
			fmt.Printf("%-24s %v\n", t.Tag, control.DecodeUint(t.Value))
		}
	}
}
