package names

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// cartoonNames is the placeholder pool for documents without a title.
var cartoonNames = dedupe([]string{
	"Mickey", "Minnie", "Donald", "Daisy", "Goofy", "Pluto", "Dumbo", "Bambi",
	"Thumper", "Simba", "Nala", "Timon", "Pumbaa", "Rafiki", "Ariel", "Flounder",
	"Sebastian", "Belle", "Lumiere", "Jasmine", "Aladdin", "Genie", "Mulan", "Mushu",
	"Lilo", "Stitch", "Moana", "Maui", "Elsa", "Anna", "Olaf", "Kristoff",
	"Sven", "Rapunzel", "Pascal", "Maximus", "Merida", "Vanellope", "Woody", "Buzz",
	"Jessie", "Rex", "Slinky", "Hamm", "Forky", "Nemo", "Marlin", "Dory",
	"Squirt", "Sully", "Mike", "Boo", "Lightning", "Mater", "Remy", "Linguini",
	"Carl", "Russell", "Dug", "Joy", "Miguel", "Hector", "Luca", "Alberto",
	"Bugs", "Daffy", "Porky", "Tweety", "Sylvester", "Foghorn", "Speedy", "Taz",
	"Marvin", "Scooby", "Shaggy", "Velma", "Daphne", "Yogi", "Booboo", "Dino",
	"Astro", "Dexter", "Blossom", "Bubbles", "Buttercup", "Courage", "SpongeBob", "Patrick",
	"Squidward", "Sandy", "Plankton", "Gary", "Tommy", "Chuckie", "Angelica", "Cosmo",
	"Wanda", "Arnold", "Helga", "Aang", "Katara", "Sokka", "Toph", "Zuko",
	"Iroh", "Appa", "Momo", "Korra", "Finn", "Jake", "Marceline", "Bubblegum",
	"Gunter", "Mordecai", "Rigby", "Gumball", "Darwin", "Steven", "Garnet", "Amethyst",
	"Peridot", "Shrek", "Fiona", "Donkey", "Puss", "Po", "Tigress", "Shifu",
	"Oogway", "Hiccup", "Toothless", "Astrid", "Stormfly", "Marty", "Melman", "Gloria",
	"Skipper", "Kowalski", "Rico", "Poppy", "Branch", "Pikachu", "Meowth", "Goku",
	"Vegeta", "Naruto", "Kakashi", "Luffy", "Zoro", "Chopper", "Totoro", "Catbus",
	"Chihiro", "Haku", "Ponyo", "Calcifer", "Kiki", "Jiji", "Popeye", "Olive",
	"Casper", "Droopy", "Tom", "Jerry", "Bluey", "Bingo", "Bandit", "Chilli",
	"Phineas", "Ferb", "Perry", "Dipper", "Mabel", "Soos", "Waddles", "Mario",
	"Luigi", "Peach", "Toad", "Yoshi", "Bowser", "Kirby", "Link", "Zelda",
	"Sonic", "Tails", "Knuckles", "Spyro", "Ratchet", "Clank", "Daxter", "Rayman",
	"Groot", "Rocket", "Baymax", "Hiro", "Scrat", "Sid", "Manny", "Diego",
	"Gru", "Agnes", "Kevin", "Stuart", "Paddington", "Judy", "Nick", "Flash",
	"Alvin", "Simon", "Theodore", "Rocko", "Heffer", "Catra", "Adora", "Glimmer",
	"Entrapta", "Cheetara", "Snarf", "Pidge", "Hunk", "Allura", "Coran", "Krolia",
})

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Placeholders hands out random cartoon names, never repeating one until
// the whole pool has been used. The used set is persisted as JSON so the
// guarantee holds across runs. It is safe for concurrent use.
type Placeholders struct {
	mu   sync.Mutex
	path string
	pool []string
	used map[string]bool
	rng  *rand.Rand
}

type usedFile struct {
	Used []string `json:"used"`
}

// NewPlaceholders loads the used set from path. An empty path keeps state
// in memory only. A nil rng uses a randomly seeded source.
func NewPlaceholders(path string, rng *rand.Rand) *Placeholders {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p := &Placeholders{
		path: path,
		pool: cartoonNames,
		used: make(map[string]bool),
		rng:  rng,
	}
	p.load()
	return p
}

func (p *Placeholders) load() {
	if p.path == "" {
		return
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not read used placeholder names", "path", p.path, "error", err)
		}
		return
	}
	var f usedFile
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("ignoring corrupt placeholder state", "path", p.path, "error", err)
		return
	}
	for _, n := range f.Used {
		p.used[n] = true
	}
}

func (p *Placeholders) save() {
	if p.path == "" {
		return
	}
	used := make([]string, 0, len(p.used))
	for n := range p.used {
		used = append(used, n)
	}
	slices.Sort(used)

	data, err := json.Marshal(usedFile{Used: used})
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o750); err != nil {
		slog.Warn("could not save placeholder state", "error", err)
		return
	}
	if err := os.WriteFile(p.path, data, 0o600); err != nil {
		slog.Warn("could not save placeholder state", "error", err)
	}
}

// Next returns an unused name and marks it used. When every name has been
// handed out the pool starts over.
func (p *Placeholders) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.availableLocked()
	if len(available) == 0 {
		clear(p.used)
		available = p.availableLocked()
	}

	name := available[p.rng.IntN(len(available))]
	p.used[name] = true
	p.save()
	return name
}

// Release returns a name to the pool, e.g. after the file was renamed.
func (p *Placeholders) Release(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used[name] {
		delete(p.used, name)
		p.save()
	}
}

// Available is the number of names not yet handed out.
func (p *Placeholders) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.availableLocked())
}

func (p *Placeholders) availableLocked() []string {
	out := make([]string, 0, len(p.pool))
	for _, n := range p.pool {
		if !p.used[n] {
			out = append(out, n)
		}
	}
	return out
}
