package wordcloud

import (
	"fmt"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bbalet/stopwords"
	"github.com/psykhi/wordclouds"
	"github.com/zvonler/threadgrab/model"
	"gopkg.in/yaml.v2"
)

var DefaultColors = []color.RGBA{
	{0x1b, 0x1b, 0x1b, 0xff},
	{0x48, 0x48, 0x4B, 0xff},
	{0x59, 0x3a, 0xee, 0xff},
	{0x65, 0xCD, 0xFA, 0xff},
	{0x70, 0xD6, 0xBF, 0xff},
}

type Conf struct {
	FontMaxSize     int    `yaml:"font_max_size"`
	FontMinSize     int    `yaml:"font_min_size"`
	RandomPlacement bool   `yaml:"random_placement"`
	FontFile        string `yaml:"font_file"`
	Colors          []color.RGBA
	BackgroundColor color.RGBA `yaml:"background_color"`
	Width           int
	Height          int
	Mask            MaskConf
	SizeFunction    *string `yaml:"size_function"`
	Debug           bool
}

type MaskConf struct {
	File  string
	Color color.RGBA
}

var DefaultConf = Conf{
	FontMaxSize:     700,
	FontMinSize:     10,
	FontFile:        "./fonts/roboto/Roboto-Regular.ttf",
	Colors:          DefaultColors,
	BackgroundColor: color.RGBA{255, 255, 255, 255},
	Width:           4096,
	Height:          4096,
}

// LoadConf reads a YAML render configuration over DefaultConf. Relative font
// and mask paths are resolved against the file's directory.
func LoadConf(path string) (Conf, error) {
	conf := DefaultConf
	content, err := os.ReadFile(path)
	if err != nil {
		return conf, fmt.Errorf("%w: %v", model.ErrInput, err)
	}
	if err = yaml.Unmarshal(content, &conf); err != nil {
		return conf, fmt.Errorf("%w: %s: %v", model.ErrInput, path, err)
	}
	dir := filepath.Dir(path)
	if conf.FontFile != "" && !filepath.IsAbs(conf.FontFile) {
		conf.FontFile = filepath.Join(dir, conf.FontFile)
	}
	if conf.Mask.File != "" && !filepath.IsAbs(conf.Mask.File) {
		conf.Mask.File = filepath.Join(dir, conf.Mask.File)
	}
	return conf, nil
}

var wordRe = regexp.MustCompile("[A-Za-z]+")

// Count tallies the words of every post, without stop words or words shorter
// than three letters, and keeps the maxWords most frequent.
func Count(threads []model.Thread, maxWords int) map[string]int {
	counts := map[string]int{}
	for _, t := range threads {
		for _, p := range t.Posts {
			relevant := stopwords.CleanString(p.Content, "en", true)
			for _, w := range wordRe.FindAllString(relevant, -1) {
				if lw := strings.ToLower(w); len(lw) >= 3 {
					counts[lw] += 1
				}
			}
		}
	}

	if maxWords <= 0 || len(counts) <= maxWords {
		return counts
	}

	wordList := make([]string, 0, len(counts))
	for w := range counts {
		wordList = append(wordList, w)
	}
	sort.Slice(wordList, func(i, j int) bool {
		if counts[wordList[i]] != counts[wordList[j]] {
			return counts[wordList[i]] > counts[wordList[j]]
		}
		return wordList[i] < wordList[j]
	})

	top := map[string]int{}
	for _, w := range wordList[:maxWords] {
		top[w] = counts[w]
	}
	return top
}

// Render draws words as a PNG image at path.
func Render(words map[string]int, conf Conf, path string) error {
	var boxes []*wordclouds.Box
	if conf.Mask.File != "" {
		boxes = wordclouds.Mask(
			conf.Mask.File,
			conf.Width,
			conf.Height,
			conf.Mask.Color)
	}

	colors := make([]color.Color, 0, len(conf.Colors))
	for _, c := range conf.Colors {
		colors = append(colors, c)
	}

	opts := []wordclouds.Option{
		wordclouds.FontFile(conf.FontFile),
		wordclouds.FontMaxSize(conf.FontMaxSize),
		wordclouds.FontMinSize(conf.FontMinSize),
		wordclouds.Colors(colors),
		wordclouds.MaskBoxes(boxes),
		wordclouds.Height(conf.Height),
		wordclouds.Width(conf.Width),
		wordclouds.RandomPlacement(conf.RandomPlacement),
		wordclouds.BackgroundColor(conf.BackgroundColor),
	}
	if conf.SizeFunction != nil {
		opts = append(opts, wordclouds.WordSizeFunction(*conf.SizeFunction))
	}
	if conf.Debug {
		opts = append(opts, wordclouds.Debug())
	}

	img := wordclouds.NewWordcloud(words, opts...).Draw()

	fd, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	defer fd.Close()
	if err := png.Encode(fd, img); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}
