package source

import (
	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/config"
	"github.com/recallguard/recallguard-api/internal/models"
)

// BuildAdapters wires one adapter per configured upstream. Each adapter
// gets its own HTTP client so rate limits apply per source.
func BuildAdapters(cfg *config.Config, vins VINSource, logger zerolog.Logger) []Adapter {
	cache := NewSnapshotCache(cfg.Fetch.CacheDir)
	client := func(name string) *httpClient {
		return newHTTPClient(cfg.Fetch.RequestTimeout, cfg.Fetch.RequestsPerSecond,
			logger.With().Str("source", name).Logger())
	}

	adapters := []Adapter{
		NewCPSC(cfg.Sources.CPSCURL, client(string(models.SourceCPSC)), cache),
		NewFDA(models.SourceFDAFood, cfg.Sources.FDAFoodURL, client(string(models.SourceFDAFood)), cache),
		NewFDA(models.SourceFDADrug, cfg.Sources.FDADrugURL, client(string(models.SourceFDADrug)), cache),
		NewFDA(models.SourceFDADevice, cfg.Sources.FDADeviceURL, client(string(models.SourceFDADevice)), cache),
		NewUSDA(cfg.Sources.USDAURL, client(string(models.SourceUSDA)), cache),
		NewNHTSA(cfg.Sources.NHTSAURL, client(string(models.SourceNHTSA)), cache),
		NewVIN(cfg.Sources.VINDecodeURL, cfg.Sources.VINRecallURL, vins,
			client(string(models.SourceNHTSAVIN)), cache, logger),
	}
	for _, site := range cfg.Sources.Sites {
		name := models.MiscSource(site.Name)
		adapters = append(adapters, NewSiteScraper(site, client(string(name)), cache, logger))
	}
	return adapters
}
