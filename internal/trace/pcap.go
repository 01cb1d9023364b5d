package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// The dumbbell testbed uses fixed addresses: the client host's address
// ends in .4, the server's in .2. Direction is classified from the source
// address's last octet.
const clientHostOctet = 4

// Copa prepends its own header to the UDP payload:
//
//	int32 seq_num; int32 flow_id; int32 src_id;
//	float64 sender_timestamp_ms; float64 receiver_timestamp_ms
const copaHeaderLen = 28

// UDT (the transport under PCC Vivace) control-packet constants.
const (
	udtHeaderLen   = 16
	udtAckExtraLen = 24
	udtTypeACK     = 2
	udtControlFlag = 0x80000000
	udtTypeMask    = 0x7fff0000
	udtSeqMask     = 0x7fffffff
)

// DirSeries is one capture's packets for one flow, split into the data
// direction (client to server) and the ACK direction (server to client).
type DirSeries struct {
	Data *Series
	ACKs *Series
}

// ParsePcap decodes a pcap capture into per-flow DirSeries, keeping only
// packets whose port pair appears in flowCCA. The flow's CCA selects how
// UDP payloads are interpreted; TCP packets contribute their byte
// sequence number and timestamp option.
func ParsePcap(r io.Reader, flowCCA map[FlowKey]CCA) (map[FlowKey]*DirSeries, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("trace: opening pcap: %w", err)
	}

	out := make(map[FlowKey]*DirSeries, len(flowCCA))
	for key := range flowCCA {
		out[key] = &DirSeries{Data: &Series{}, ACKs: &Series{}}
	}

	for {
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("trace: reading pcap: %w", err)
		}
		pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Lazy)
		ipLayer := pkt.Layer(layers.LayerTypeIPv4)
		if ipLayer == nil {
			continue
		}
		ip := ipLayer.(*layers.IPv4)

		var (
			srcPort, dstPort uint16
			isTCP            bool
			tcp              *layers.TCP
			udp              *layers.UDP
		)
		switch l := pkt.TransportLayer().(type) {
		case *layers.TCP:
			isTCP = true
			tcp = l
			srcPort, dstPort = uint16(l.SrcPort), uint16(l.DstPort)
		case *layers.UDP:
			udp = l
			srcPort, dstPort = uint16(l.SrcPort), uint16(l.DstPort)
		default:
			continue
		}

		// Classify direction by the source host.
		fromClient := len(ip.SrcIP) > 0 && ip.SrcIP[len(ip.SrcIP)-1] == clientHostOctet
		var key FlowKey
		if fromClient {
			key = FlowKey{ClientPort: srcPort, ServerPort: dstPort}
		} else {
			key = FlowKey{ClientPort: dstPort, ServerPort: srcPort}
		}
		dir, ok := out[key]
		if !ok {
			continue
		}

		seq := Unknown
		tsVal, tsEcr := Unknown, Unknown
		transHeaderLen := 0
		if isTCP {
			seq = float64(tcp.Seq)
			transHeaderLen = int(tcp.DataOffset) << 2
			for _, opt := range tcp.Options {
				if opt.OptionType == layers.TCPOptionKindTimestamps && len(opt.OptionData) >= 8 {
					tsVal = float64(binary.BigEndian.Uint32(opt.OptionData[0:4]))
					tsEcr = float64(binary.BigEndian.Uint32(opt.OptionData[4:8]))
					break
				}
			}
		} else {
			transHeaderLen = 8
			payload := udp.Payload
			switch flowCCA[key] {
			case CCACopa:
				transHeaderLen += copaHeaderLen
				if len(payload) < copaHeaderLen {
					continue
				}
				seqNum := int32(binary.LittleEndian.Uint32(payload[0:4]))
				if seqNum == -1 {
					// Connection-establishment packet.
					continue
				}
				seq = float64(seqNum)
				senderTsMs := math.Float64frombits(binary.LittleEndian.Uint64(payload[12:20]))
				receiverTsMs := math.Float64frombits(binary.LittleEndian.Uint64(payload[20:28]))
				tsVal = math.Round(senderTsMs * 1000)
				tsEcr = math.Round(receiverTsMs * 1000)
			case CCAVivace:
				if len(payload) < 4 {
					continue
				}
				first := binary.BigEndian.Uint32(payload[0:4])
				if first&udtControlFlag != 0 {
					if fromClient {
						// Client-to-server control packet.
						continue
					}
					if (first&udtTypeMask)>>16 != udtTypeACK {
						continue
					}
					transHeaderLen += udtHeaderLen + udtAckExtraLen
					if len(payload) < 24 {
						continue
					}
					// The acked data sequence number, and the optional
					// RTT report.
					seq = float64(binary.BigEndian.Uint32(payload[16:20]))
					tsVal = float64(binary.BigEndian.Uint32(payload[20:24]))
				} else {
					transHeaderLen += udtHeaderLen
					seq = float64(first & udtSeqMask)
				}
			default:
				// Unrecognized UDP traffic; keep the arrival only.
			}
		}

		series := dir.ACKs
		if fromClient {
			series = dir.Data
		}
		series.Append(
			seq,
			float64(ci.Timestamp.UnixMicro()),
			tsVal,
			tsEcr,
			float64(int(ip.Length)-int(ip.IHL)<<2-transHeaderLen),
			float64(ci.Length),
		)
	}
	return out, nil
}

// AssembleFlows builds Flow values from the sender-side and receiver-side
// captures of one experiment, in the declared flow order.
func AssembleFlows(keys []FlowKey, flowCCA map[FlowKey]CCA, client, server map[FlowKey]*DirSeries) []*Flow {
	flows := make([]*Flow, 0, len(keys))
	for _, key := range keys {
		f := NewFlow(key, flowCCA[key])
		if d := client[key]; d != nil {
			f.SentData, f.SentACKs = d.Data, d.ACKs
		}
		if d := server[key]; d != nil {
			f.RecvData, f.RecvACKs = d.Data, d.ACKs
		}
		flows = append(flows, f)
	}
	return flows
}
