package sonos

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/strefethen/sonos-player-go/internal/discovery"
	"github.com/strefethen/sonos-player-go/internal/sonos/soap"
)

var argPattern = regexp.MustCompile(`<(\w+)>([^<]*)</\w+>`)

// fakeRenderer emulates the AVTransport and RenderingControl services of a
// single device.
type fakeRenderer struct {
	mu sync.Mutex

	uri    string
	meta   string
	status string
	volume int

	// transitioning is how many transport polls report TRANSITIONING after Play.
	transitioning int
	// clipPolls is how many transport polls report PLAYING after Play before
	// the device stops by itself. Negative never stops.
	clipPolls int
	// driftURI replaces the source instead of stopping once clipPolls runs out.
	driftURI string
	// ignoreSource drops SetAVTransportURI requests.
	ignoreSource bool
	// failCall fails the nth (1-based) call of an action with a UPnP fault.
	failCall map[string]int

	transitionsLeft int
	playingLeft     int
	counts          map[string]int
	calls           []string
	volumesSet      []int
	server          *httptest.Server
}

func newFakeRenderer(t *testing.T, uri, meta, status string, volume int) *fakeRenderer {
	t.Helper()
	f := &fakeRenderer{
		uri:       uri,
		meta:      meta,
		status:    status,
		volume:    volume,
		clipPolls: 1,
		failCall:  map[string]int{},
		counts:    map[string]int{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRenderer) device(id string, volumeRange soap.VolumeRange) discovery.Device {
	return discovery.Device{
		ID:                  id,
		Name:                "Room " + id,
		Location:            f.server.URL + "/xml/device_description.xml",
		AVTransportURL:      f.server.URL + "/MediaRenderer/AVTransport/Control",
		RenderingControlURL: f.server.URL + "/MediaRenderer/RenderingControl/Control",
		VolumeRange:         volumeRange,
		HostIP:              "127.0.0.1",
	}
}

func (f *fakeRenderer) handle(w http.ResponseWriter, r *http.Request) {
	soapAction := strings.Trim(r.Header.Get("SOAPACTION"), `"`)
	action := soapAction[strings.LastIndex(soapAction, "#")+1:]
	body, _ := io.ReadAll(r.Body)
	args := map[string]string{}
	for _, match := range argPattern.FindAllStringSubmatch(string(body), -1) {
		args[match[1]] = html.UnescapeString(match[2])
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.counts[action]++
	f.calls = append(f.calls, action)
	if n, ok := f.failCall[action]; ok && n == f.counts[action] {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault>`+
			`<faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring><detail>`+
			`<UPnPError xmlns="urn:schemas-upnp-org:control-1-0"><errorCode>714</errorCode></UPnPError>`+
			`</detail></s:Fault></s:Body></s:Envelope>`)
		return
	}

	var result string
	switch action {
	case "GetTransportInfo":
		status := f.status
		if f.transitionsLeft > 0 {
			f.transitionsLeft--
			status = "TRANSITIONING"
		} else if f.status == "PLAYING" && f.playingLeft > 0 {
			f.playingLeft--
			if f.playingLeft == 0 {
				if f.driftURI != "" {
					f.uri = f.driftURI
				} else {
					f.status = "STOPPED"
				}
			}
		}
		result = "<CurrentTransportState>" + strings.ToLower(status) + "</CurrentTransportState>" +
			"<CurrentTransportStatus>OK</CurrentTransportStatus><CurrentSpeed>1</CurrentSpeed>"
	case "GetMediaInfo":
		result = "<NrTracks>1</NrTracks><CurrentURI>" + escape(f.uri) + "</CurrentURI>" +
			"<CurrentURIMetaData>" + escape(f.meta) + "</CurrentURIMetaData>"
	case "GetVolume":
		result = "<CurrentVolume>" + strconv.Itoa(f.volume) + "</CurrentVolume>"
	case "SetVolume":
		f.volume, _ = strconv.Atoi(args["DesiredVolume"])
		f.volumesSet = append(f.volumesSet, f.volume)
	case "SetAVTransportURI":
		if !f.ignoreSource {
			f.uri = args["CurrentURI"]
			f.meta = args["CurrentURIMetaData"]
		}
	case "Play":
		f.status = "PLAYING"
		f.transitionsLeft = f.transitioning
		f.playingLeft = f.clipPolls
	case "Stop":
		f.status = "STOPPED"
		f.transitionsLeft = 0
	}

	_, _ = fmt.Fprintf(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>`+
		`<u:%sResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1">%s</u:%sResponse>`+
		`</s:Body></s:Envelope>`, action, result, action)
}

func (f *fakeRenderer) state() (uri, meta, status string, volume int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uri, f.meta, f.status, f.volume
}

func (f *fakeRenderer) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRenderer) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[action]
}

func escape(value string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(value))
	return b.String()
}

func newTestController(devices []discovery.Device, options ControllerOptions) *Controller {
	if options.PollInterval == 0 {
		options.PollInterval = 5 * time.Millisecond
	}
	return NewController(devices, soap.NewClient(2*time.Second), options, log.New(io.Discard, "", 0))
}

func fastOptions(volume float64) PlayOptions {
	return PlayOptions{Volume: volume, StartTimeout: 50 * time.Millisecond}
}
