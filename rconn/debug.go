package rconn

import (
	"bytes"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	of "github.com/netrack/openflow"
	log "github.com/sirupsen/logrus"
)

// debugLogPacketIn best-effort decodes the Ethernet layer of a
// PACKET_IN payload purely to enrich a Debug-level log line. The decode
// never drives any decision; payload interpretation beyond admission
// classification is out of scope, so this is observability only and
// any decode failure is silently ignored.
func (c *Conn) debugLogPacketIn(raw []byte) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	var h of.Header
	hCount, err := h.ReadFrom(bytes.NewReader(raw))
	if err != nil {
		return
	}
	const packetInType = of.Type(10)
	if h.Type != packetInType {
		return
	}
	payload := raw[hCount:]
	pkt := gopacket.NewPacket(payload, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return
	}
	c.logger().WithField("dl_type", eth.EthernetType.String()).Debug("packet-in ethernet layer")
}
