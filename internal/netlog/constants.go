package netlog

// EventPhase marks whether an event opens a span, closes one, or stands alone
type EventPhase int

const (
	PhaseNone  EventPhase = 0
	PhaseBegin EventPhase = 1
	PhaseEnd   EventPhase = 2
)

// String returns the NetLog name of the phase
func (p EventPhase) String() string {
	switch p {
	case PhaseBegin:
		return "PHASE_BEGIN"
	case PhaseEnd:
		return "PHASE_END"
	default:
		return "PHASE_NONE"
	}
}

// SourceType identifies the kind of activity a group of events belongs to.
// Values are the NetLog constant names, so unknown types from newer
// captures pass through untouched.
type SourceType string

const (
	SourceNone                    SourceType = "NONE"
	SourceURLRequest              SourceType = "URL_REQUEST"
	SourceSocketStream            SourceType = "SOCKET_STREAM"
	SourceHTTPStreamJob           SourceType = "HTTP_STREAM_JOB"
	SourceConnectJob              SourceType = "CONNECT_JOB"
	SourceHostResolverRequest     SourceType = "HOST_RESOLVER_IMPL_REQUEST"
	SourceHostResolverJob         SourceType = "HOST_RESOLVER_IMPL_JOB"
	SourceHostResolverProcTask    SourceType = "HOST_RESOLVER_IMPL_PROC_TASK"
	SourceDiskCacheEntry          SourceType = "DISK_CACHE_ENTRY"
	SourceMemoryCacheEntry        SourceType = "MEMORY_CACHE_ENTRY"
	SourceSpdySession             SourceType = "SPDY_SESSION"
	SourceHTTPPipelinedConnection SourceType = "HTTP_PIPELINED_CONNECTION"
	SourceSocket                  SourceType = "SOCKET"
	SourceUDPSocket               SourceType = "UDP_SOCKET"
	SourceAsyncHostResolver       SourceType = "ASYNC_HOST_RESOLVER_REQUEST"
	SourceDNSTransaction          SourceType = "DNS_TRANSACTION"
	SourceDownload                SourceType = "DOWNLOAD"
	SourceFileStream              SourceType = "FILESTREAM"
	SourceIPv6ProbeJob            SourceType = "IPV6_PROBE_JOB"
	SourceInitProxyResolver       SourceType = "INIT_PROXY_RESOLVER"
)

// EventType is the NetLog name of a logged event
type EventType string

const (
	TypeRequestAlive                EventType = "REQUEST_ALIVE"
	TypeURLRequestStartJob          EventType = "URL_REQUEST_START_JOB"
	TypeURLRequestBlockedOnDelegate EventType = "URL_REQUEST_BLOCKED_ON_DELEGATE"
	TypeSocketStreamConnect         EventType = "SOCKET_STREAM_CONNECT"
	TypeSocketPoolConnectJob        EventType = "SOCKET_POOL_CONNECT_JOB"
	TypeSocketPoolConnectJobConnect EventType = "SOCKET_POOL_CONNECT_JOB_CONNECT"
	TypeSocketAlive                 EventType = "SOCKET_ALIVE"
	TypeTCPConnect                  EventType = "TCP_CONNECT"
	TypeUDPConnect                  EventType = "UDP_CONNECT"
	TypeHostResolverImplJob         EventType = "HOST_RESOLVER_IMPL_JOB"
	TypeHostResolverImplRequest     EventType = "HOST_RESOLVER_IMPL_REQUEST"
	TypeHTTPCacheOpenEntry          EventType = "HTTP_CACHE_OPEN_ENTRY"
	TypeHTTPTransactionSendHeaders  EventType = "HTTP_TRANSACTION_SEND_REQUEST_HEADERS"
	TypeHTTPTransactionReadHeaders  EventType = "HTTP_TRANSACTION_READ_RESPONSE_HEADERS"
	TypeFileStreamAlive             EventType = "FILE_STREAM_ALIVE"
	TypeFileStreamOpen              EventType = "FILE_STREAM_OPEN"
	TypeDownloadItemActive          EventType = "DOWNLOAD_ITEM_ACTIVE"
	TypeDownloadFileOpened          EventType = "DOWNLOAD_FILE_OPENED"
	TypeDownloadFileRenamed         EventType = "DOWNLOAD_FILE_RENAMED"
	TypeIPv6ProbeRunning            EventType = "IPV6_PROBE_RUNNING"
	TypeInitProxyResolver           EventType = "INIT_PROXY_RESOLVER"
	TypeNetworkChanged              EventType = "NETWORK_CHANGED"
)

// Net error codes the classifier cares about
const (
	ErrNone   = 0
	ErrFailed = -2 // reported by HTTP_CACHE_OPEN_ENTRY on a plain cache miss
)

// EventTypeName returns the display name of an event type
func EventTypeName(t EventType) string {
	return string(t)
}

// SourceTypeName returns the display name of a source type
func SourceTypeName(t SourceType) string {
	return string(t)
}
