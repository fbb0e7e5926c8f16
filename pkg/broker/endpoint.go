package broker

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultWSPath is the websocket path used by RabbitMQ's Web MQTT plugin
const DefaultWSPath = "/ws"

var defaultPorts = map[string]int{
	"tcp":   1883,
	"ssl":   8883,
	"ws":    15675,
	"wss":   15676,
	"amqp":  5672,
	"amqps": 5671,
}

var schemeAliases = map[string]string{
	"mqtt":  "tcp",
	"mqtts": "ssl",
	"tls":   "ssl",
}

// Endpoint is a normalized broker address
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	Path   string
	User   *url.Userinfo
}

// ParseEndpoint accepts ws://, wss://, mqtt://, mqtts://, tcp://, ssl://,
// amqp:// and amqps:// URLs as well as a bare host[:port], which is taken
// to mean MQTT over TCP. Websocket URLs without a path get wsPath.
func ParseEndpoint(raw, wsPath string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, errors.New("broker: empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "tcp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, errors.Wrapf(err, "broker: parse %q", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if alias, ok := schemeAliases[scheme]; ok {
		scheme = alias
	}
	defaultPort, ok := defaultPorts[scheme]
	if !ok {
		return Endpoint{}, errors.Wrapf(ErrUnsupportedScheme, "%q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, errors.Newf("broker: missing host in %q", raw)
	}

	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, errors.Newf("broker: invalid port %q", p)
		}
	}

	ep := Endpoint{Scheme: scheme, Host: host, Port: port, User: u.User}
	switch {
	case ep.IsWebsocket():
		ep.Path = u.Path
		if ep.Path == "" || ep.Path == "/" {
			ep.Path = wsPath
			if ep.Path == "" {
				ep.Path = DefaultWSPath
			}
		}
	case ep.IsAMQP():
		ep.Path = u.Path
	}
	return ep, nil
}

// IsWebsocket reports whether the endpoint is MQTT over websocket
func (e Endpoint) IsWebsocket() bool {
	return e.Scheme == "ws" || e.Scheme == "wss"
}

// IsAMQP reports whether the endpoint speaks AMQP 0-9-1
func (e Endpoint) IsAMQP() bool {
	return e.Scheme == "amqp" || e.Scheme == "amqps"
}

// URL renders the endpoint. Credentials are only kept for AMQP, where the
// client library reads them from the URL.
func (e Endpoint) URL() string {
	u := url.URL{
		Scheme: e.Scheme,
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
		Path:   e.Path,
	}
	if e.IsAMQP() {
		u.User = e.User
	}
	return u.String()
}

// String renders the endpoint without credentials
func (e Endpoint) String() string {
	e.User = nil
	return e.URL()
}

// ValidateTopic rejects empty topics and MQTT wildcards.
func ValidateTopic(topic string) error {
	switch {
	case topic == "":
		return errors.Wrap(ErrInvalidTopic, "empty topic")
	case strings.ContainsAny(topic, "+#"):
		return errors.Wrapf(ErrInvalidTopic, "wildcards are not supported: %q", topic)
	case strings.ContainsRune(topic, 0):
		return errors.Wrapf(ErrInvalidTopic, "NUL in topic %q", topic)
	}
	return nil
}

// RoutingKey maps an MQTT topic to the amq.topic routing key RabbitMQ's MQTT
// plugin uses for it.
func RoutingKey(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// TopicFromRoutingKey is the inverse of RoutingKey
func TopicFromRoutingKey(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}
