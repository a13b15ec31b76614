// internal/matching/engine.go
package matching

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Scoring weights for the combined relevance score.
const (
	keywordWeight    = 0.35
	skillWeight      = 0.35
	textSimWeight    = 0.15
	titleMatchWeight = 0.15

	topKeywords      = 40
	titleTopKeywords = 10
	bigramWeight     = 0.5
	skillBoost       = 2.0
	similarityWindow = 1000
)

// techSkills is the domain vocabulary used for skill matching and keyword
// boosting. Matched by substring against cleaned text, so multi-word
// entries work too.
var techSkills = map[string]struct{}{
	"python": {}, "java": {}, "javascript": {}, "typescript": {}, "react": {},
	"angular": {}, "vue": {}, "node": {}, "nodejs": {}, "django": {}, "flask": {},
	"fastapi": {}, "spring": {}, "sql": {}, "nosql": {}, "mongodb": {},
	"postgresql": {}, "mysql": {}, "redis": {}, "docker": {}, "kubernetes": {},
	"aws": {}, "azure": {}, "gcp": {}, "api": {}, "rest": {}, "graphql": {},
	"microservices": {}, "agile": {}, "scrum": {}, "git": {}, "ci/cd": {},
	"devops": {}, "machine learning": {}, "ml": {}, "ai": {}, "data science": {},
	"tensorflow": {}, "pytorch": {}, "pandas": {}, "numpy": {}, "spark": {},
	"hadoop": {}, "kafka": {}, "android": {}, "ios": {}, "swift": {},
	"kotlin": {}, "flutter": {}, "react native": {}, "html": {}, "css": {},
	"sass": {}, "webpack": {}, "elasticsearch": {}, "rabbitmq": {}, "testing": {},
	"junit": {}, "pytest": {}, "selenium": {}, "cypress": {}, "c++": {},
	"golang": {}, "rust": {}, "scala": {}, "ruby": {}, "php": {}, "laravel": {},
	"rails": {}, ".net": {}, "c#": {}, "asp.net": {}, "blazor": {},
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "will": {}, "with": {}, "we": {}, "you": {}, "your": {},
	"our": {}, "this": {}, "should": {}, "can": {}, "may": {}, "must": {},
	"have": {}, "had": {}, "but": {}, "or": {}, "not": {}, "been": {},
	"which": {},
}

var (
	urlPattern     = regexp.MustCompile(`http\S+|www\S+`)
	emailPattern   = regexp.MustCompile(`\S+@\S+`)
	allowedPattern = regexp.MustCompile(`[^a-z0-9\s\+\#\.\-]`)
)

// Keyword is one weighted query term. Weights are normalized so the top
// keyword carries 1.0.
type Keyword struct {
	Term   string
	Weight float64
}

// CleanText lowercases, strips URLs and email addresses, drops everything
// outside a-z, 0-9 and + # . -, and collapses whitespace.
func CleanText(text string) string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, "")
	text = emailPattern.ReplaceAllString(text, "")
	text = allowedPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// ExtractKeywords pulls the topN weighted terms out of a text: unigram
// frequencies minus stop words, bigrams at half weight, domain skills
// doubled. Ties in weight break lexicographically so the selection is
// stable across runs.
func ExtractKeywords(text string, topN int) []Keyword {
	words := strings.Fields(CleanText(text))

	freq := make(map[string]float64)
	for i, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, stop := stopWords[word]; !stop {
			freq[word]++
		}
		if i < len(words)-1 && len(words[i+1]) >= 2 {
			freq[word+" "+words[i+1]] += bigramWeight
		}
	}

	for term, count := range freq {
		if _, ok := techSkills[term]; ok {
			freq[term] = count * skillBoost
		}
	}

	keywords := make([]Keyword, 0, len(freq))
	for term, weight := range freq {
		keywords = append(keywords, Keyword{Term: term, Weight: weight})
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Weight != keywords[j].Weight {
			return keywords[i].Weight > keywords[j].Weight
		}
		return keywords[i].Term < keywords[j].Term
	})

	if len(keywords) > topN {
		keywords = keywords[:topN]
	}
	if len(keywords) > 0 && keywords[0].Weight > 0 {
		max := keywords[0].Weight
		for i := range keywords {
			keywords[i].Weight /= max
		}
	}
	return keywords
}

// ExtractSkills returns the domain vocabulary terms present in a text.
func ExtractSkills(text string) map[string]struct{} {
	cleaned := CleanText(text)
	found := make(map[string]struct{})
	for skill := range techSkills {
		if strings.Contains(cleaned, skill) {
			found[skill] = struct{}{}
		}
	}
	return found
}

// KeywordMatch scores how well weighted query keywords appear in a job
// text. A keyword found early in the text earns a position bonus, repeat
// occurrences add diminishing returns, and the sum is normalized by the
// total keyword weight and clamped to 1.
func KeywordMatch(keywords []Keyword, jobText string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	cleaned := CleanText(jobText)
	var totalWeight, matchedWeight float64

	for _, kw := range keywords {
		totalWeight += kw.Weight

		pos := strings.Index(cleaned, kw.Term)
		if pos < 0 {
			continue
		}

		positionBonus := 1.0
		switch {
		case pos < 200:
			positionBonus = 1.5
		case pos < 500:
			positionBonus = 1.2
		}

		occurrences := strings.Count(cleaned, kw.Term)
		if occurrences > 3 {
			occurrences = 3
		}
		matchedWeight += kw.Weight * positionBonus * math.Sqrt(float64(occurrences))
	}

	if totalWeight == 0 {
		return 0
	}
	return math.Min(matchedWeight/totalWeight, 1.0)
}

// SkillMatch is the Jaccard similarity of the domain skills found in both
// texts.
func SkillMatch(querySkills map[string]struct{}, jobText string) float64 {
	if len(querySkills) == 0 {
		return 0
	}
	jobSkills := ExtractSkills(jobText)
	if len(jobSkills) == 0 {
		return 0
	}
	return jaccard(querySkills, jobSkills)
}

// TextSimilarity is the Jaccard similarity of the stop-word-filtered token
// sets of two texts.
func TextSimilarity(text1, text2 string) float64 {
	set1 := tokenSet(text1)
	set2 := tokenSet(text2)
	if len(set1) == 0 || len(set2) == 0 {
		return 0
	}
	return jaccard(set1, set2)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(CleanText(text)) {
		if _, stop := stopWords[word]; !stop {
			set[word] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	var intersection int
	for term := range a {
		if _, ok := b[term]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// QueryProfile holds the features extracted once from a query text, so a
// candidate pool can be scored without re-deriving them per job.
type QueryProfile struct {
	text     string
	keywords []Keyword
	skills   map[string]struct{}
}

// NewQueryProfile extracts keywords and skills from a query text.
func NewQueryProfile(text string) *QueryProfile {
	return &QueryProfile{
		text:     text,
		keywords: ExtractKeywords(text, topKeywords),
		skills:   ExtractSkills(text),
	}
}

// Score rates one job against the query. Pure and deterministic: identical
// inputs always produce the identical float.
func (p *QueryProfile) Score(jobTitle, jobDescription, jobCompany string) float64 {
	// Doubling the title weights its terms over body terms.
	jobFullText := jobTitle + " " + jobTitle + " " + jobDescription + " " + jobCompany

	keywordScore := KeywordMatch(p.keywords, jobFullText)
	skillScore := SkillMatch(p.skills, jobFullText)
	textSimScore := TextSimilarity(firstN(p.text, similarityWindow), firstN(jobFullText, similarityWindow))

	titleKeywords := p.keywords
	if len(titleKeywords) > titleTopKeywords {
		titleKeywords = titleKeywords[:titleTopKeywords]
	}
	titleScore := KeywordMatch(titleKeywords, jobTitle)

	final := keywordScore*keywordWeight +
		skillScore*skillWeight +
		textSimScore*textSimWeight +
		titleScore*titleMatchWeight
	return math.Min(final, 1.0)
}

// Score is the one-shot form of QueryProfile.Score.
func Score(queryText, jobTitle, jobDescription, jobCompany string) float64 {
	return NewQueryProfile(queryText).Score(jobTitle, jobDescription, jobCompany)
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
