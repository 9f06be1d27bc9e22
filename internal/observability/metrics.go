package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"factorycraft.ai/internal/sim/factory"
)

// TickCollector exports per-tick engine measurements and implements
// factory.Observer.
type TickCollector struct {
	gatherer prometheus.Gatherer

	Ticks              prometheus.Counter
	TickDuration       prometheus.Histogram
	Buildings          prometheus.Gauge
	CacheRebuilds      prometheus.Counter
	EnergyShortages    prometheus.Gauge
	DanglingLinks      prometheus.Gauge
	ConstructionErrors prometheus.Counter
	Clients            prometheus.Gauge
}

var _ factory.Observer = (*TickCollector)(nil)

// NewTickCollector registers the engine metrics against reg, defaulting to
// the global Prometheus registry when nil. Registering twice against the
// same registry returns the existing collectors.
func NewTickCollector(reg prometheus.Registerer) (*TickCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &TickCollector{gatherer: gatherer}
	var err error
	if c.Ticks, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "factory_ticks_total",
		Help: "Total number of completed simulation ticks.",
	}), "factory_ticks_total"); err != nil {
		return nil, err
	}
	if c.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "factory_tick_duration_seconds",
		Help:    "Wall time spent inside one simulation tick.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "factory_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Buildings, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "factory_buildings",
		Help: "Buildings processed by the last tick.",
	}), "factory_buildings"); err != nil {
		return nil, err
	}
	if c.CacheRebuilds, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "factory_connection_cache_rebuilds_total",
		Help: "Ticks that rebuilt the connection cache and spatial index.",
	}), "factory_connection_cache_rebuilds_total"); err != nil {
		return nil, err
	}
	if c.EnergyShortages, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "factory_energy_shortages",
		Help: "Buildings flagged with an energy shortage in the last tick.",
	}), "factory_energy_shortages"); err != nil {
		return nil, err
	}
	if c.DanglingLinks, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "factory_dangling_connections",
		Help: "Connections skipped by the last tick because an endpoint or port was invalid.",
	}), "factory_dangling_connections"); err != nil {
		return nil, err
	}
	if c.ConstructionErrors, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "factory_construction_errors_total",
		Help: "Placements that could not be turned into buildings.",
	}), "factory_construction_errors_total"); err != nil {
		return nil, err
	}
	if c.Clients, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "factory_ws_clients",
		Help: "Connected websocket clients.",
	}), "factory_ws_clients"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *TickCollector) ObserveTick(res factory.TickResult) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(res.Duration.Seconds())
	c.Buildings.Set(float64(res.Buildings))
	c.EnergyShortages.Set(float64(res.Shortages))
	c.DanglingLinks.Set(float64(res.Dangling))
	if res.Rebuilt {
		c.CacheRebuilds.Inc()
	}
}

func (c *TickCollector) ConstructionFailed() {
	if c == nil {
		return
	}
	c.ConstructionErrors.Inc()
}

// ClientConnected and ClientDisconnected track live websocket sessions.
func (c *TickCollector) ClientConnected() {
	if c != nil {
		c.Clients.Inc()
	}
}

func (c *TickCollector) ClientDisconnected() {
	if c != nil {
		c.Clients.Dec()
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TickCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
