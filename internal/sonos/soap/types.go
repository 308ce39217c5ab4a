package soap

// UPnP service types used by media renderers.
const (
	ServiceAVTransport      = "urn:schemas-upnp-org:service:AVTransport:1"
	ServiceRenderingControl = "urn:schemas-upnp-org:service:RenderingControl:1"
)

// Prefixes matched against serviceType entries of a device description.
// Any version of the service is accepted.
const (
	AVTransportPrefix      = "urn:schemas-upnp-org:service:AVTransport:"
	RenderingControlPrefix = "urn:schemas-upnp-org:service:RenderingControl:"
)

// ControlNamespace is the namespace of UPnP fault details (errorCode, errorDescription).
const ControlNamespace = "urn:schemas-upnp-org:control-1-0"

// Arg is a single action argument. Arguments are serialized in slice order.
type Arg struct {
	Name  string
	Value string
}
