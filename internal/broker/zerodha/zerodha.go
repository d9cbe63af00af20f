package zerodha

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"indian-stock-api/internal/api"
	"indian-stock-api/internal/broker"
	"indian-stock-api/internal/brokererr"
	"indian-stock-api/internal/cache"
	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/metrics"
	"indian-stock-api/internal/types"
)

// ID is the Zerodha broker namespace
const ID = "zerodha"

// DefaultCacheKey holds the normalized instrument master for the day
const DefaultCacheKey = "zerodha_instruments.json.gz"

// MasterTimeout bounds the instrument master download
const MasterTimeout = 15 * time.Second

// instrumentsPath is the Kite endpoint of the instrument master
const instrumentsPath = "/instruments"

// InstrumentSource downloads the Kite instrument master
type InstrumentSource interface {
	GetInstruments() (kiteconnect.Instruments, error)
}

// Params holds Kite credentials
type Params struct {
	APIKey      string
	AccessToken string
}

// master is the normalized instrument master persisted in the cache
type master struct {
	Equities types.EquityTable `json:"equities"`
	Options  []types.OptionRow `json:"options"`
}

// Zerodha is the Zerodha broker backed by the Kite Connect instrument master
type Zerodha struct {
	*broker.Base
	source  InstrumentSource
	baseURI string
	cache   *cache.Daily[master]
	roots   []types.Root
	mapper  *instrumentMapper

	mu sync.Mutex
}

// Option configures Zerodha
type Option func(*Zerodha)

// WithSource overrides the instrument source
func WithSource(src InstrumentSource) Option {
	return func(z *Zerodha) {
		z.source = src
	}
}

// WithBaseURI points the Kite client at another API root
func WithBaseURI(uri string) Option {
	return func(z *Zerodha) {
		z.baseURI = uri
	}
}

// WithRoots restricts option rows to the given roots
func WithRoots(roots ...types.Root) Option {
	return func(z *Zerodha) {
		z.roots = roots
	}
}

// NewZerodha creates the Zerodha broker. The instrument master is cached in
// store for the day.
func NewZerodha(p Params, store cache.Store, opts ...Option) *Zerodha {
	z := &Zerodha{
		Base:   broker.NewBase(ID),
		roots:  types.Roots,
		mapper: newInstrumentMapper(),
	}
	for _, opt := range opts {
		opt(z)
	}
	if z.source == nil {
		z.source = z.kiteClient(p)
	}
	if store == nil {
		store = cache.NewFileStore("")
	}
	z.cache = cache.NewDaily[master](store, DefaultCacheKey, cache.WithName(ID+"_instruments"))
	return z
}

// kiteClient builds a Kite client sharing the broker session, so Kite calls
// go through the same cookie jar and retry transport
func (z *Zerodha) kiteClient(p Params) *kiteconnect.Client {
	hc := *z.Client().HTTPClient()
	hc.Timeout = MasterTimeout

	kc := kiteconnect.New(p.APIKey)
	kc.SetHTTPClient(&hc)
	if z.baseURI != "" {
		kc.SetBaseURI(z.baseURI)
	}
	if p.AccessToken != "" {
		kc.SetAccessToken(p.AccessToken)
	}
	return kc
}

// FetchEquityTokens returns the NSE and BSE equity tables keyed by trading symbol
func (z *Zerodha) FetchEquityTokens(ctx context.Context) (types.EquityTable, error) {
	m, err := z.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.Equities, nil
}

// FetchOptionRows returns the index options of the tracked roots
func (z *Zerodha) FetchOptionRows(ctx context.Context) ([]types.OptionRow, error) {
	m, err := z.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.Options, nil
}

// Token returns the instrument token of symbol on exchange once the master is loaded
func (z *Zerodha) Token(exchange, symbol string) (int, bool) {
	return z.mapper.getToken(exchange, symbol)
}

// Symbol returns the exchange and trading symbol of token
func (z *Zerodha) Symbol(token int) (string, string, bool) {
	return z.mapper.getSymbol(token)
}

func (z *Zerodha) load(ctx context.Context) (master, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	m, err := z.cache.GetOrCompute(ctx, z.download)
	if err != nil {
		return master{}, err
	}

	z.mapper.load(m.Equities, m.Options)
	for exchange, records := range m.Equities {
		metrics.TokensLoaded.WithLabelValues(ID, string(exchange)).Set(float64(len(records)))
	}
	return m, nil
}

func (z *Zerodha) download(ctx context.Context) (master, error) {
	timer := logger.StartOperation(ctx, "zerodha.download")

	start := time.Now()
	instruments, err := z.source.GetInstruments()
	if err != nil {
		err = downloadError(err)
	}
	metrics.RecordFetch(ID, http.MethodGet, time.Since(start), err)
	if err != nil {
		timer.EndWithError(err)
		return master{}, err
	}
	if len(instruments) == 0 {
		err = brokererr.New(brokererr.KindTokenDownload, "No data fetched from Kite API.")
		timer.EndWithError(err)
		return master{}, err
	}

	m := normalize(instruments, z.roots)
	timer.End("instruments", len(instruments), "options", len(m.Options))
	return m, nil
}

// downloadError keeps timeout and network kinds of transport failures; any
// other failure is a TokenDownloadError
func downloadError(err error) error {
	classified := api.Classify(ID, http.MethodGet, instrumentsPath, err)
	if kind, ok := brokererr.KindOf(classified); ok && (kind == brokererr.KindTimeout || kind == brokererr.KindNetwork) {
		return classified
	}
	return brokererr.Wrap(brokererr.KindTokenDownload, err, "failed to download Kite instruments")
}

// normalize splits the Kite master into equity tables and option rows.
// Kite publishes tick sizes in rupees, so no scaling applies.
func normalize(instruments kiteconnect.Instruments, roots []types.Root) master {
	wanted := make(map[string]types.Root, len(roots))
	for _, r := range roots {
		wanted[string(r)] = r
	}

	m := master{
		Equities: types.EquityTable{
			types.NSE: make(map[string]types.EquityRecord),
			types.BSE: make(map[string]types.EquityRecord),
		},
	}

	for _, inst := range instruments {
		switch inst.InstrumentType {
		case "EQ":
			exchange := types.ExchangeCode(inst.Exchange)
			records, ok := m.Equities[exchange]
			if !ok {
				continue
			}
			if _, seen := records[inst.Tradingsymbol]; seen {
				continue
			}
			records[inst.Tradingsymbol] = types.EquityRecord{
				Token:    inst.InstrumentToken,
				Symbol:   inst.Tradingsymbol,
				TickSize: inst.TickSize,
				LotSize:  strconv.Itoa(int(inst.LotSize)),
				Exchange: inst.Exchange,
			}

		case string(types.CE), string(types.PE):
			root, ok := wanted[inst.Name]
			if !ok {
				continue
			}
			m.Options = append(m.Options, types.OptionRow{
				Token:    inst.InstrumentToken,
				Symbol:   inst.Tradingsymbol,
				Root:     root,
				Expiry:   inst.Expiry.Time,
				Strike:   int(inst.StrikePrice),
				Option:   types.OptionType(inst.InstrumentType),
				TickSize: inst.TickSize,
				LotSize:  int(inst.LotSize),
				Exchange: inst.Exchange,
			})
		}
	}
	return m
}

func (z *Zerodha) String() string {
	return fmt.Sprintf("%s [%d tokens]", z.Base.String(), z.mapper.size())
}
