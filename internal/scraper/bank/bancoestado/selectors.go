package bancoestado

import "github.com/grez-lucas/bancoestado-scraper/internal/scraper/browser"

// Portal URLs
const (
	URLRoot = "https://www.bancoestado.cl/"
	URLHome = "https://www.bancoestado.cl/personas/home"
)

// CSS Selectors for the BancoEstado personas portal
const (
	// Login page
	SelectorRUTInput      = "#rut"
	SelectorPasswordInput = "#pass"

	// Dashboard
	SelectorCarousel     = "app-carrusel-productos-wrapper"
	SelectorCarouselNext = "button[aria-label='Siguiente']"
	SelectorCarouselPrev = "button[aria-label='Anterior']"
	SelectorHomeLogo     = "#logoBechHomeIndex"
	SelectorHomeButton   = "button[aria-label='Inicio']"

	// Account cards
	SelectorCardTitleArea   = ".m-card-global__header--title"
	SelectorCardNumberAlt   = "p[aria-hidden='true'][role='text']"
	SelectorCardAriaLabeled = "[aria-label]"

	// Home feed ("últimos movimientos")
	SelectorFeed           = "app-ultimos-movimientos-home"
	SelectorFeedList       = "div.list-movimiento"
	SelectorFeedItem       = "div.list-item-movimiento"
	SelectorFeedDate       = "div.list-item-movimiento__fecha"
	SelectorFeedGlosa      = "div.list-item-movimiento__glosa"
	SelectorFeedAmount     = "div.list-item-movimiento__monto span"
	SelectorFeedCredit     = "span.green_text"
	SelectorFeedScrollArea = "div.msd-container-scroll__content"

	// Last-resort account scan
	SelectorFallbackCards  = `div[class*="card"], div[class*="producto"], div[class*="cuenta"]`
	SelectorFallbackTitles = `h1, h2, h3, h4, h5, div[class*="title"]`

	creditRowClass = "green_row"
)

// Card field candidates, most specific first.
var (
	cardNameSelectors = []string{
		"h3:not(.sr_only):not([aria-hidden='true'])",
		"h3[aria-hidden='true']",
		".m-card-global__header--title h3:not(.sr_only)",
	}
	cardBalanceSelectors = []string{
		"div.m-card-global__content--cuentas__saldos h4",
		".msd-card-ahorro__saldo--amount h4",
		"h4",
	}
)

// Ledger field candidates. Row selectors are evaluated inside the ledger
// table; the first one that yields rows wins.
var (
	ledgerRowSelectors = []string{
		"tbody tr",
		"div[role='row']",
		".ag-row",
		"div[class*='row']",
	}
	ledgerDateSelectors = []string{
		"td[role='cell']:nth-child(2) p",
		"td[role='cell'] div.contentText p",
		"div[col-id='fecha'] p",
		".contentText p",
		"p.ng-star-inserted",
		"td p",
	}
	ledgerDescriptionSelectors = []string{
		"td[role='cell']:nth-child(3) button",
		"td[role='cell'] div.contentText.largoDescripcition button",
		".contentText.largoDescripcition button",
		"button.msd-button--link",
	}
	ledgerAmountSelectors = []string{
		"td[role='cell']:nth-child(5) p.amountsTransferClp span",
		"td[role='cell'] div.contentText p.amountsTransferClp span",
		".contentText p.amountsTransferClp span",
		"p.amountsTransferClp span",
	}
	// creditMarkers flag a credit when no explicit sign is shown.
	creditMarkers = `.green_text, [style*="color: green"], [style*="color:#00A300"], [style*="color: rgb(17, 122, 101)"]`
)

// rejectionPhrases are shown by the portal after a refused login.
var rejectionPhrases = []string{
	"clave incorrecta",
	"rut incorrecto",
	"ha ocurrido un error",
	"usuario bloqueado",
	"intentos excedidos",
}

// successURLFragments identify the dashboard when no dashboard element is
// rendered yet.
var successURLFragments = []string{"personas/home", "personas/inicio", "#home", "dashboard"}

// Locator chains used against the live page.
var (
	entryPointChain = browser.Chain{
		browser.ExactText("a[href*='login'] span", "Banca en Línea"),
		browser.Text("a", "Banca en Línea"),
		browser.CSS("a[href*='login']"),
	}

	rutInputChain      = browser.CSSChain(SelectorRUTInput, "input[name='rut']")
	passwordInputChain = browser.CSSChain(SelectorPasswordInput, "input[type='password']")

	submitChain = browser.Chain{
		browser.CSS("#btnLogin"),
		browser.CSS("button.msd-button--primary"),
		browser.CSS("button[type='submit']"),
		browser.Text("button", "Ingresar"),
		browser.CSS(".msd-button.msd-button--primary"),
		browser.CSS("button.msd-button"),
	}

	dashboardChain = browser.CSSChain(
		SelectorCarousel,
		"app-card-producto",
		SelectorFeed,
		".dashboard-container",
		"#dashboard",
	)

	carouselChain = browser.CSSChain(
		SelectorCarousel,
		"app-carousel-productos",
		"div[role='list']",
		"div.carousel",
		"div.slider",
	)

	cardChain = browser.CSSChain(
		"app-card-producto, app-card-ahorro",
		"div[class*='card']",
		"div.carousel-item",
		"div.card",
		"div[role='listitem']",
	)

	carouselNextChain = browser.CSSChain(SelectorCarouselNext)
	carouselPrevChain = browser.CSSChain(SelectorCarouselPrev + ":not([disabled])")

	homeChain = browser.CSSChain(SelectorHomeLogo, SelectorHomeButton)

	feedChain = browser.CSSChain(SelectorFeed, SelectorFeedList)

	movementsButtonChain = browser.Chain{
		browser.Text("button", "Movimientos"),
		browser.Text("button", "Ver Movimientos"),
		browser.Text("button", "Saldos y movs."),
	}

	ledgerTableChain = browser.CSSChain(
		"app-listado-movimientos table",
		"div[class*='movimientos'] table",
		"app-movimientos table",
		".tabla-movimientos",
		"table.ag-table",
		"table.movimientos-table",
		"div[role='grid']",
		"div.ag-body-viewport",
		"div.ag-center-cols-container",
		"table",
	)

	ledgerContainerChain = browser.CSSChain(
		"app-listado-movimientos",
		"app-movimientos",
		"div[class*='movimientos']",
	)

	nextPageChain = browser.Chain{
		browser.CSS("button.btn-next:not([disabled])"),
		browser.CSS(".pagination-next:not([disabled])"),
		browser.CSS(".ag-paging-button[ref='btNext']:not(.ag-disabled)"),
		browser.CSS("button.next-page:not([disabled])"),
	}

	// ledgerNextChain also accepts generic "Siguiente" controls, which the
	// carousel shares. Only evaluated inside the ledger container.
	ledgerNextChain = nextPageChain.Then(
		browser.CSS("button[aria-label='Siguiente']:not([disabled])"),
		browser.Text("button:not([disabled])", "Siguiente"),
	)
)

// Overlays is every modal, promo and sidebar the portal is known to show.
var Overlays = browser.OverlayRules{
	CloseButtons: `button[aria-label*="Close"], button[aria-label*="Cerrar"], .modal-close, .close-button`,
	Targeted: []string{
		"button.evg-btn-dismissal[aria-label*='Close']",
		"button.evg-btn-dismissal[aria-label*='Cerrar']",
		"button.msd-button--close",
		"#holidayid button[aria-label='Cerrar']",
		"#afpid button[aria-label='Cerrar']",
		"#promoid button[aria-label='Cerrar']",
		"#infoid button[aria-label='Cerrar']",
	},
	GenericClose: "button[aria-label='Cerrar']",
	Containers:   `.sidebar-container, .modal-container, [role="dialog"]`,
}

// Balances describes the "mostrar saldos" toggle.
var Balances = browser.RevealRules{
	Candidates: `button, input[type="checkbox"]`,
	Keywords:   []string{"mostrar", "ocultar"},
	Amounts:    `[class*="saldo"], [class*="monto"]`,
}

// Probe names one locator chain the scraper relies on.
type Probe struct {
	Name  string
	Chain browser.Chain
}

// Probes lists the chains to re-check when the portal layout changes.
func Probes() []Probe {
	return []Probe{
		{"Banca en Línea entry", entryPointChain},
		{"RUT input", rutInputChain},
		{"Password input", passwordInputChain},
		{"Login submit", submitChain},
		{"Dashboard marker", dashboardChain},
		{"Product carousel", carouselChain},
		{"Account card", cardChain},
		{"Carousel next", carouselNextChain},
		{"Carousel previous", carouselPrevChain},
		{"Home menu", homeChain},
		{"Recent movements feed", feedChain},
		{"Movements button", movementsButtonChain},
		{"Ledger table", ledgerTableChain},
		{"Ledger next page", nextPageChain},
		{"Feed item", browser.CSSChain(SelectorFeedItem)},
		{"Overlay close", browser.CSSChain(Overlays.GenericClose)},
	}
}
