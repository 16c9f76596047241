package netflow

import "testing"

func TestSplitAddr(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		wantIP   string
		wantPort int
		hasPort  bool
	}{
		{"ipv4 with port", "100.64.0.1:80", "100.64.0.1", 80, true},
		{"ipv4 without port", "100.64.0.1", "100.64.0.1", 0, false},
		{"bracketed ipv6 with port", "[fd7a:115c:a1e0::1]:443", "fd7a:115c:a1e0::1", 443, true},
		{"bracketed ipv6 without port", "[fd7a:115c:a1e0::1]", "fd7a:115c:a1e0::1", 0, false},
		{"bare ipv6 is never split", "fd7a:115c:a1e0::1", "fd7a:115c:a1e0::1", 0, false},
		{"loopback ipv6", "::1", "::1", 0, false},
		{"full ipv6", "2001:db8:0:1:1:1:1:1", "2001:db8:0:1:1:1:1:1", 0, false},
		{"non-numeric suffix stays whole", "100.64.0.1:http", "100.64.0.1:http", 0, false},
		{"bracketed with junk port keeps ip", "[::1]:http", "::1", 0, false},
		{"high port", "10.0.0.7:65535", "10.0.0.7", 65535, true},
		{"whitespace trimmed", "  10.0.0.7:22 ", "10.0.0.7", 22, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractIP(tt.addr); got != tt.wantIP {
				t.Errorf("ExtractIP(%q) = %q, want %q", tt.addr, got, tt.wantIP)
			}
			port, ok := ExtractPort(tt.addr)
			if ok != tt.hasPort {
				t.Fatalf("ExtractPort(%q) ok = %v, want %v", tt.addr, ok, tt.hasPort)
			}
			if ok && port != tt.wantPort {
				t.Errorf("ExtractPort(%q) = %d, want %d", tt.addr, port, tt.wantPort)
			}
		})
	}
}

func TestProtocolName(t *testing.T) {
	tests := []struct {
		proto int
		want  string
	}{
		{1, "ICMP"},
		{6, "TCP"},
		{17, "UDP"},
		{255, "Reserved"},
		{41, "Proto-41"},
		{0, "Proto-0"},
		{132, "Proto-132"},
	}

	for _, tt := range tests {
		if got := ProtocolName(tt.proto); got != tt.want {
			t.Errorf("ProtocolName(%d) = %q, want %q", tt.proto, got, tt.want)
		}
	}
}

func TestPortTracked(t *testing.T) {
	if !PortTracked(6) || !PortTracked(17) {
		t.Error("expected TCP and UDP ports to be tracked")
	}
	if PortTracked(1) || PortTracked(255) {
		t.Error("expected ICMP and Reserved ports not to be tracked")
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want Category
	}{
		{"relay literal", "100.100.100.100", CategoryRelay},
		{"mesh cgnat low", "100.64.0.1", CategoryMesh},
		{"mesh cgnat high", "100.127.255.255", CategoryMesh},
		{"just past cgnat", "100.128.0.1", CategoryPublic},
		{"just before cgnat", "100.63.255.255", CategoryPublic},
		{"mesh ula", "fd7a:115c:a1e0::1", CategoryMesh},
		{"mesh ula upper case", "FD7A:115C:A1E0::5", CategoryMesh},
		{"mesh ula bracketed", "[fd7a:115c:a1e0::5]", CategoryMesh},
		{"ula outside mesh prefix", "fd7a:115c:a1e1::1", CategoryPrivate},
		{"generic ula", "fd00::1", CategoryPrivate},
		{"rfc1918 ten", "10.1.2.3", CategoryPrivate},
		{"rfc1918 oneseventytwo", "172.16.0.9", CategoryPrivate},
		{"rfc1918 oneninetwo", "192.168.1.1", CategoryPrivate},
		{"link local v4", "169.254.10.10", CategoryPrivate},
		{"link local v6", "fe80::1", CategoryPrivate},
		{"public v4", "8.8.8.8", CategoryPublic},
		{"public v6", "2606:4700:4700::1111", CategoryPublic},
		{"garbage defaults public", "not-an-ip", CategoryPublic},
		{"empty defaults public", "", CategoryPublic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.ip); got != tt.want {
				t.Errorf("Categorize(%q) = %q, want %q", tt.ip, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("casing and brackets collapse to one form", func(t *testing.T) {
		variants := []string{
			"FD7A:115C:A1E0::1",
			"fd7a:115c:a1e0::1",
			"[fd7a:115c:a1e0::1]",
			"[FD7A:115C:A1E0::1]",
		}
		want := "fd7a:115c:a1e0::1"
		for _, v := range variants {
			if got := Normalize(v); got != want {
				t.Errorf("Normalize(%q) = %q, want %q", v, got, want)
			}
		}
	})
}
