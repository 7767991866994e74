// Package reciter holds the catalog of supported reciters and the mapping
// from a reciter id to the codes used by the audio hosts.
package reciter

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// Reciter is one entry of the catalog.
type Reciter struct {
	ID   string
	Name string

	// IslamicCode is the cdn.islamic.network edition, e.g. "ar.alafasy".
	IslamicCode string

	// EveryAyahFolders are candidate folders on everyayah.com, in order
	// of preference.
	EveryAyahFolders []string

	Aliases []string
}

// FallbackFolders are tried for any reciter when its own sources fail.
var FallbackFolders = []string{
	"Saad_al-Ghamdi_128kbps",
	"Abdurrahmaan_As-Sudais_192kbps",
	"Saood_ash-Shuraym_128kbps",
	"Minshawi_Murattal_128kbps",
	"Husary_128kbps",
	"Ahmed_ibn_Ali_al-Ajmy_128kbps",
}

// DefaultID is used when nothing else resolves.
const DefaultID = "alafasy"

var builtin = []Reciter{
	{ID: "alafasy", Name: "Mishary Rashid Alafasy", IslamicCode: "ar.alafasy", Aliases: []string{"mishary", "afasy"}},
	{ID: "sudais", Name: "Abdul Rahman Al-Sudais", IslamicCode: "ar.sudais",
		EveryAyahFolders: []string{"Abdurrahmaan_As-Sudais_192kbps", "Abdurrahmaan_As-Sudais_64kbps"}},
	{ID: "shuraim", Name: "Saud Al-Shuraim", IslamicCode: "ar.shuraim",
		EveryAyahFolders: []string{"Saood_ash-Shuraym_128kbps"}, Aliases: []string{"shuraym"}},
	{ID: "abdullah-awad", Name: "Abdullah Awad Al-Juhany", IslamicCode: "ar.juhany",
		EveryAyahFolders: []string{"Abdullah_Al-Juhany_128kbps"}, Aliases: []string{"juhany"}},
	{ID: "ghamdi", Name: "Saad Al-Ghamdi", IslamicCode: "ar.ghamdi",
		EveryAyahFolders: []string{"Saad_al-Ghamdi_128kbps"}},
	{ID: "dosari", Name: "Yasser Al-Dosari", IslamicCode: "ar.yasser",
		EveryAyahFolders: []string{"Yasser_Ad-Dussary_128kbps"}, Aliases: []string{"dussary"}},
	{ID: "maher", Name: "Maher Al-Muaiqly", IslamicCode: "ar.maher",
		EveryAyahFolders: []string{"Maher_AlMuaiqly_64kbps", "Maher_AlMuaiqly_128kbps"}, Aliases: []string{"muaiqly"}},
	{ID: "hudhaify-ali", Name: "Ali Al-Hudhaify", IslamicCode: "ar.hudhaifi",
		EveryAyahFolders: []string{"Hudhaify_128kbps", "Ali_Huzaifi_128kbps"}},
	{ID: "budair", Name: "Salah Al-Budair", IslamicCode: "ar.budair"},
	{ID: "abdul-basit", Name: "Abdul Basit Abdus Samad", IslamicCode: "ar.abdulbasit",
		EveryAyahFolders: []string{"Abdul_Basit_Murattal_128kbps", "Abdul_Basit_Murattal_192kbps"}},
	{ID: "minshawi", Name: "Muhammad Siddiq Al-Minshawi", IslamicCode: "ar.minshawi",
		EveryAyahFolders: []string{"Minshawi_Murattal_128kbps"}},
	{ID: "hussary", Name: "Mahmoud Khalil Al-Hussary",
		EveryAyahFolders: []string{"Husary_128kbps", "Hussary_128kbps"}, Aliases: []string{"husary"}},
	{ID: "mustafa-ismail", Name: "Mustafa Ismail",
		EveryAyahFolders: []string{"MustafaIsmail_128kbps", "Mustafa_Ismail_48kbps"}},
	{ID: "ayyub", Name: "Muhammad Ayyub",
		EveryAyahFolders: []string{"Muhammad_Ayyoub_128kbps", "Muhammad_Ayyub_128kbps"}, Aliases: []string{"ayyoub"}},
	{ID: "ajamy", Name: "Ahmed Al-Ajamy",
		EveryAyahFolders: []string{"Ahmed_ibn_Ali_al-Ajmy_128kbps", "Ahmed_ibn_Ali_Al-Ajamy_64kbps", "Ajamy_128kbps"}, Aliases: []string{"ajmy"}},
	{ID: "muhammad-rifat", Name: "Muhammad Rifat",
		EveryAyahFolders: []string{"Muhammad_Rifat_192kbps"}},
	{ID: "mohamed-salamah", Name: "Muhammad Salamah",
		EveryAyahFolders: []string{"Muhammad_Salamah_128kbps"}},
	{ID: "basfar", Name: "Abdullah Basfar", IslamicCode: "ar.basfar",
		EveryAyahFolders: []string{"Basfar_192kbps", "Abdullah_Basfar_192kbps"}},
	{ID: "bahtimi", Name: "Kamel Youssef Al-Bahtimi",
		EveryAyahFolders: []string{"Kamel_Youssef_El-Bahtimi_128kbps", "Kamel_Youssef_El-Bahtimi_64kbps"}},
	{ID: "abdulrahman-huthaify", Name: "Abdulrahman Al-Huthaify", IslamicCode: "ar.hudhaifi",
		EveryAyahFolders: []string{"Hudhaify_128kbps"}},
}

// Catalog is an immutable set of reciters indexed by id.
type Catalog struct {
	reciters []Reciter
	byID     map[string]Reciter

	// explicit maps every lower-cased id and alias to an id
	explicit map[string]string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return NewCatalog(builtin...)
}

// NewCatalog builds a catalog. Later entries with a duplicate id replace
// earlier ones.
func NewCatalog(reciters ...Reciter) *Catalog {
	c := &Catalog{
		byID:     make(map[string]Reciter, len(reciters)),
		explicit: make(map[string]string),
	}
	for _, r := range reciters {
		c.byID[r.ID] = r
	}
	c.reciters = lo.Values(c.byID)
	sort.Slice(c.reciters, func(i, j int) bool { return c.reciters[i].ID < c.reciters[j].ID })

	for _, r := range c.reciters {
		c.explicit[strings.ToLower(r.ID)] = r.ID
		for _, a := range r.Aliases {
			c.explicit[strings.ToLower(a)] = r.ID
		}
	}
	return c
}

// All returns the reciters sorted by id.
func (c *Catalog) All() []Reciter {
	return append([]Reciter(nil), c.reciters...)
}

// Get returns the reciter with the exact id.
func (c *Catalog) Get(id string) (Reciter, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// MustGet returns the reciter with id or the default reciter.
func (c *Catalog) MustGet(id string) Reciter {
	if r, ok := c.byID[id]; ok {
		return r
	}
	if r, ok := c.byID[DefaultID]; ok {
		return r
	}
	return Reciter{ID: id}
}

// ResolveID turns user input into a catalog id, failing on guesses so that
// persisted preferences never hold a fuzzy match silently.
func (c *Catalog) ResolveID(query string) (string, error) {
	m, err := c.Lookup(query)
	if err != nil {
		return "", err
	}
	if m.Confidence == Guessed {
		return "", ayah.NewError(ayah.CodeInvalidInput, "ambiguous reciter", nil).
			WithContext("query", query).
			WithContext("suggestion", m.Reciter.ID)
	}
	return m.Reciter.ID, nil
}
