package call

import "strings"

// normalizeCodecCase upper-cases codec names some gateways emit in
// lowercase, which strict SDP parsers reject.
func normalizeCodecCase(sdp string) string {
	sdp = strings.ReplaceAll(sdp, "h264", "H264")
	sdp = strings.ReplaceAll(sdp, "vp8", "VP8")
	return sdp
}
