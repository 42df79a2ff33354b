package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyImport(t *testing.T) {
	env := newTestEnv(t, true)
	env.company(t, "OLD")

	csv := "Symbol,Name,Sector,Industry,Market\n" +
		"aapl,Apple Inc,Technology,Consumer Electronics,NASDAQ\n" +
		" msft ,Microsoft,Technology,Software,NASDAQ\n" +
		",Nameless,,,\n"

	result, err := env.companySvc.Import(env.ctx, strings.NewReader(csv), true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Upserted)
	assert.Equal(t, 1, result.Skipped)
	assert.EqualValues(t, 1, result.Deactivated)

	aapl, err := env.companySvc.Resolve(env.ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, aapl)
	assert.Equal(t, "Apple Inc", aapl.Name)
	assert.Equal(t, "Consumer Electronics", aapl.Industry)

	active, err := env.companies.All(env.ctx, true)
	require.NoError(t, err)
	symbols := []string{}
	for _, c := range active {
		symbols = append(symbols, c.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	// re-import refreshes metadata instead of duplicating
	_, err = env.companySvc.Import(env.ctx, strings.NewReader("symbol,name\nAAPL,Apple\n"), false)
	require.NoError(t, err)
	all, err := env.companies.All(env.ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	aapl, err = env.companySvc.Resolve(env.ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, "Apple", aapl.Name)
}

func TestCompanyImportRequiresSymbolColumn(t *testing.T) {
	env := newTestEnv(t, true)

	_, err := env.companySvc.Import(env.ctx, strings.NewReader("ticker,name\nAAPL,Apple\n"), false)
	assert.ErrorIs(t, err, ErrInvalidCSVHeader)
}

func TestCompanyResolveCachesMisses(t *testing.T) {
	env := newTestEnv(t, true)

	missing, err := env.companySvc.Resolve(env.ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// imports invalidate the cached miss
	_, err = env.companySvc.Import(env.ctx, strings.NewReader("symbol\nNOPE\n"), false)
	require.NoError(t, err)
	found, err := env.companySvc.Resolve(env.ctx, "nope")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "NOPE", found.Symbol)
}

func TestConfigServiceToggles(t *testing.T) {
	env := newTestEnv(t, true)

	cfg, err := env.configSvc.SetBotEnabled(env.ctx, false)
	require.NoError(t, err)
	assert.False(t, cfg.BotEnabled)
	assert.False(t, env.configSvc.Controls(cfg).BotEnabled)

	cfg, err = env.configSvc.SetTradingEnabled(env.ctx, false)
	require.NoError(t, err)
	assert.False(t, cfg.TradingEnabled)
	assert.Equal(t, env.activeCfgID, cfg.ID)

	// snapshots are copies
	cfg.BotEnabled = true
	again, err := env.configSvc.Active(env.ctx)
	require.NoError(t, err)
	assert.False(t, again.BotEnabled)
}
