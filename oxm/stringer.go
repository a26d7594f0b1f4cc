package oxm

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"net"
	"strings"
)

func (self Oxm) String() string {
	var ret []string
	for _, s := range self.Iter() {
		ret = append(ret, s.single())
	}
	return strings.Join(ret, ",")
}

func (self Oxm) single() string {
	hdr := self.Header()
	if hdr.Class() != OFPXMC_OPENFLOW_BASIC {
		return fmt.Sprintf("oxm_0x%08x=0x%x", hdr.Type(), []byte(self[4:]))
	}
	def, ok := lookupField(hdr.Field())
	if !ok {
		return fmt.Sprintf("field%d=0x%x", hdr.Field(), []byte(self[4:]))
	}
	if hdr.Field() == OFPXMT_OFB_IN_PORT && !hdr.HasMask() {
		if name, ok := portNames[binary.BigEndian.Uint32(self.Value())]; ok {
			return "in_port=" + name
		}
	}
	if mask := self.Mask(); mask != nil {
		return fmt.Sprintf("%s=%s/%s", def.name, format(def.kind, self.Value()), format(def.kind, mask))
	}
	return fmt.Sprintf("%s=%s", def.name, format(def.kind, self.Value()))
}

var portNames = map[uint32]string{
	OFPP_IN_PORT:    "in_port",
	OFPP_TABLE:      "table",
	OFPP_NORMAL:     "normal",
	OFPP_FLOOD:      "flood",
	OFPP_ALL:        "all",
	OFPP_CONTROLLER: "controller",
	OFPP_LOCAL:      "local",
	OFPP_ANY:        "any",
}

func format(k kind, p []byte) string {
	switch k {
	case kindMac:
		return net.HardwareAddr(p).String()
	case kindIPv4, kindIPv6:
		return net.IP(p).String()
	case kindHex:
		return "0x" + new(big.Int).SetBytes(p).Text(16)
	default:
		return new(big.Int).SetBytes(p).String()
	}
}

func parseValue(k kind, width int, txt string) ([]byte, error) {
	switch k {
	case kindMac:
		hw, err := net.ParseMAC(txt)
		if err != nil {
			return nil, err
		}
		if len(hw) != width {
			return nil, fmt.Errorf("mac width %d", len(hw))
		}
		return []byte(hw), nil
	case kindIPv4:
		ip := net.ParseIP(txt).To4()
		if ip == nil {
			return nil, fmt.Errorf("ipv4 parse error %s", txt)
		}
		return []byte(ip), nil
	case kindIPv6:
		ip := net.ParseIP(txt)
		if ip == nil {
			return nil, fmt.Errorf("ipv6 parse error %s", txt)
		}
		return []byte(ip.To16()), nil
	}
	n, ok := new(big.Int).SetString(txt, 0)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("integer capture failed %s", txt)
	}
	if n.BitLen() > 8*width {
		return nil, fmt.Errorf("%s exceeds %d bytes", txt, width)
	}
	return n.FillBytes(make([]byte, width)), nil
}

// prefix mask for the ipv4_src=10.0.0.0/8 form
func prefixMask(width int, txt string) ([]byte, bool) {
	var ones int
	if n, err := fmt.Sscanf(txt, "%d", &ones); err != nil || n != 1 || strings.ContainsAny(txt, ".:") {
		return nil, false
	}
	if ones < 0 || ones > 8*width {
		return nil, false
	}
	m := make([]byte, width)
	for i := 0; i < ones; i++ {
		m[i/8] |= 1 << uint8(7-i%8)
	}
	return m, true
}

// ParseOne reads a single name=value[/mask] token and returns the TLV and
// the number of bytes consumed.
func ParseOne(txt string) ([]byte, int, error) {
	if sep := strings.IndexRune(txt, ','); sep >= 0 {
		txt = txt[:sep]
	}
	labelIdx := strings.IndexRune(txt, '=')
	if labelIdx <= 0 {
		return nil, 0, fmt.Errorf("parse failed %s", txt)
	}
	field, ok := FieldByName(txt[:labelIdx])
	if !ok {
		return nil, 0, fmt.Errorf("unknown field %s", txt[:labelIdx])
	}
	def := fields[field]
	args := txt[labelIdx+1:]
	value, maskTxt := args, ""
	if split := strings.IndexRune(args, '/'); split > 0 {
		value, maskTxt = args[:split], args[split+1:]
	}

	if field == OFPXMT_OFB_IN_PORT && maskTxt == "" {
		for num, name := range portNames {
			if name == value {
				buf := make([]byte, 4)
				binary.BigEndian.PutUint32(buf, num)
				return New(field, buf, nil), len(txt), nil
			}
		}
	}

	v, err := parseValue(def.kind, def.width, value)
	if err != nil {
		return nil, 0, err
	}
	var m []byte
	if maskTxt != "" {
		if !def.maskable {
			return nil, 0, fmt.Errorf("%s not maskable", def.name)
		}
		if def.kind == kindIPv4 || def.kind == kindIPv6 {
			m, ok = prefixMask(def.width, maskTxt)
		}
		if !ok || m == nil {
			if m, err = parseValue(def.kind, def.width, maskTxt); err != nil {
				return nil, 0, err
			}
		}
	}
	return New(field, v, m), len(txt), nil
}

// Parse reads a comma separated list of tokens.
func Parse(txt string) (Oxm, int, error) {
	var ret Oxm
	cur := 0
	for cur < len(txt) {
		buf, n, err := ParseOne(txt[cur:])
		if err != nil {
			return nil, cur, err
		}
		ret = append(ret, buf...)
		cur += n
		if cur < len(txt) && txt[cur] == ',' {
			cur++
		}
	}
	return ret, cur, nil
}
