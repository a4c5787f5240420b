package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// NetworkHandler serves the LAN discovery endpoint the main screen uses to
// render a join URL for phones on the same network. Not part of the state
// machine's contract.
type NetworkHandler struct {
	port int
}

func NewNetworkHandler(port int) *NetworkHandler {
	return &NetworkHandler{port: port}
}

type networkInfo struct {
	Port int      `json:"port"`
	IPs  []string `json:"ips"`
}

// ServeNetwork returns the listening port and every non-loopback IPv4
// address on the host.
func (h *NetworkHandler) ServeNetwork(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(networkInfo{Port: h.port, IPs: LanIPv4s()}); err != nil {
		log.Printf("network info write error: %v", err)
	}
}

// ServeJoinQR renders a PNG QR code for the join URL, so phones can scan the
// main screen instead of typing an address.
func (h *NetworkHandler) ServeJoinQR(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		if ips := LanIPv4s(); len(ips) > 0 {
			ip = ips[0]
		} else {
			ip = "localhost"
		}
	}

	joinURL := fmt.Sprintf("http://%s:%d", ip, h.port)
	png, err := qrcode.Encode(joinURL, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "failed to generate qr code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		log.Printf("qr write error: %v", err)
	}
}

// LanIPv4s lists the host's non-loopback IPv4 addresses, deduplicated in
// interface order.
func LanIPv4s() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if _, dup := seen[ip.String()]; dup {
				continue
			}
			seen[ip.String()] = struct{}{}
			ips = append(ips, ip.String())
		}
	}
	return ips
}
