package netlog

import "strings"

// describeFunc extracts a description from the start entry of a source
type describeFunc func(s *SourceEntry, start *Event) string

var describers = map[SourceType]describeFunc{
	SourceURLRequest:              paramField("url"),
	SourceSocketStream:            paramField("url"),
	SourceHTTPStreamJob:           paramField("url"),
	SourceConnectJob:              paramField("group_name"),
	SourceHostResolverRequest:     paramField("host"),
	SourceHostResolverJob:         paramField("host"),
	SourceHostResolverProcTask:    paramField("host"),
	SourceDiskCacheEntry:          paramField("key"),
	SourceMemoryCacheEntry:        paramField("key"),
	SourceSpdySession:             describeSpdySession,
	SourceHTTPPipelinedConnection: paramField("host_and_port"),
	SourceSocket:                  describeSocket,
	SourceUDPSocket:               describeUDPSocket,
	SourceAsyncHostResolver:       paramField("hostname"),
	SourceDNSTransaction:          paramField("hostname"),
	SourceDownload:                describeDownload,
	SourceFileStream:              paramField("file_name"),
	SourceIPv6ProbeJob:            describeIPv6Probe,
}

var downloadFields = map[EventType]string{
	TypeDownloadFileRenamed: "new_filename",
	TypeDownloadFileOpened:  "file_name",
	TypeDownloadItemActive:  "file_name",
}

// updateDescription recomputes the description from the current start
// entry. A start entry without params leaves the description as it was.
func (s *SourceEntry) updateDescription() {
	e := s.startEntry()
	if e == nil {
		s.description = ""
		return
	}

	// NONE is used for global events that are not grouped by a source id,
	// so the event type itself is the best description there is.
	if e.Source.Type == SourceNone {
		s.description = EventTypeName(e.Type)
		return
	}

	if e.Params == nil {
		return
	}

	describe, ok := describers[e.Source.Type]
	if !ok {
		s.description = ""
		return
	}
	s.description = describe(s, e)
}

func paramField(key string) describeFunc {
	return func(_ *SourceEntry, e *Event) string {
		v, _ := e.Params.String(key)
		return v
	}
}

func describeSpdySession(_ *SourceEntry, e *Event) string {
	host, ok := e.Params.String("host")
	if !ok || host == "" {
		return ""
	}
	proxy, _ := e.Params.String("proxy")
	return host + " (" + proxy + ")"
}

// describeSocket borrows the description of the source that owns the socket
func describeSocket(s *SourceEntry, e *Event) string {
	parentID, ok := e.Params.SourceDependency()
	if !ok {
		return ""
	}
	parent, ok := s.lookup(parentID)
	if !ok {
		return s.storedDescription
	}
	return parent.Description()
}

// describeUDPSocket uses the remote address. Sockets opened by a host
// resolver job are DNS lookups, so the host being resolved is appended as
// "<DNS server> [<host>]".
func describeUDPSocket(s *SourceEntry, e *Event) string {
	address, ok := e.Params.String("address")
	if !ok {
		return ""
	}

	first := s.entries[0]
	if first.Type != TypeSocketAlive {
		return address
	}
	parentID, ok := first.Params.SourceDependency()
	if !ok {
		return address
	}
	parent, ok := s.lookup(parentID)
	if !ok && strings.HasPrefix(s.storedDescription, address+" [") {
		return s.storedDescription
	}
	if ok && parent.SourceType() == SourceHostResolverJob && parent.Description() != "" {
		address += " [" + parent.Description() + "]"
	}
	return address
}

func describeDownload(_ *SourceEntry, e *Event) string {
	key, ok := downloadFields[e.Type]
	if !ok {
		return ""
	}
	v, _ := e.Params.String(key)
	return v
}

func describeIPv6Probe(_ *SourceEntry, e *Event) string {
	if e.Type != TypeIPv6ProbeRunning || e.Phase != PhaseEnd {
		return ""
	}
	if e.Params.Bool("ipv6_supported") {
		return "IPv6 Supported"
	}
	return "IPv6 Not Supported"
}

func (s *SourceEntry) lookup(id int64) (*SourceEntry, bool) {
	if s.deps.Lookup == nil {
		return nil, false
	}
	parent, ok := s.deps.Lookup.SourceEntry(id)
	if !ok || parent == nil {
		return nil, false
	}
	return parent, true
}
