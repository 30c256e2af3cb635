// Package question holds the question-bank records served by the API:
// Part 5 grammar/vocabulary questions, Part 6 cloze-passage sets and Part 7
// reading-comprehension sets. Answer fields live in separate payloads so the
// list endpoints never carry them.
package question

import "go.mongodb.org/mongo-driver/bson/primitive"

// Choice is one of the four options of a question.
type Choice struct {
	ID          string `bson:"id" json:"id"`
	Text        string `bson:"text" json:"text"`
	Translation string `bson:"translation" json:"translation"`
}

// VocabularyItem annotates a word appearing in a question's explanation.
type VocabularyItem struct {
	Word               string `bson:"word" json:"word"`
	Meaning            string `bson:"meaning" json:"meaning"`
	PartOfSpeech       string `bson:"partOfSpeech" json:"partOfSpeech"`
	Example            string `bson:"example" json:"example"`
	ExampleTranslation string `bson:"exampleTranslation" json:"exampleTranslation"`
}

// Part5Question is a single-sentence grammar or vocabulary question.
type Part5Question struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Part                int                `bson:"part" json:"part"`
	QuestionCategory    string             `bson:"questionCategory" json:"questionCategory"`
	QuestionSubType     string             `bson:"questionSubType" json:"questionSubType"`
	Difficulty          string             `bson:"difficulty" json:"difficulty"`
	QuestionText        string             `bson:"questionText" json:"questionText"`
	QuestionTranslation string             `bson:"questionTranslation" json:"questionTranslation"`
	Choices             []Choice           `bson:"choices" json:"choices"`
}

// Answer is the sensitive payload of a question: the correct choice, the
// explanation and the vocabulary notes. Never cached.
type Answer struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Answer      string             `bson:"answer" json:"answer"`
	Explanation string             `bson:"explanation" json:"explanation"`
	Vocabulary  []VocabularyItem   `bson:"vocabulary,omitempty" json:"vocabulary,omitempty"`
}

// SubQuestion is one question inside a Part 6 or Part 7 set.
type SubQuestion struct {
	Seq                 int      `bson:"seq" json:"seq"`
	QuestionText        string   `bson:"questionText,omitempty" json:"questionText,omitempty"`
	QuestionTranslation string   `bson:"questionTranslation,omitempty" json:"questionTranslation,omitempty"`
	Choices             []Choice `bson:"choices" json:"choices"`
}

// Part6Set is a cloze passage with four blanks.
type Part6Set struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Part               int                `bson:"part" json:"part"`
	PassageType        string             `bson:"passageType" json:"passageType"`
	Difficulty         string             `bson:"difficulty" json:"difficulty"`
	Passage            string             `bson:"passage" json:"passage"`
	PassageTranslation string             `bson:"passageTranslation" json:"passageTranslation"`
	Questions          []SubQuestion      `bson:"questions" json:"questions"`
}

// PassageChunk is one passage of a Part 7 set (single sets have one, double
// and triple sets have two or three).
type PassageChunk struct {
	Seq         int    `bson:"seq" json:"seq"`
	Type        string `bson:"type" json:"type"`
	Text        string `bson:"text" json:"text"`
	Translation string `bson:"translation,omitempty" json:"translation,omitempty"`
}

// Part7Set is a reading-comprehension set of one to three passages with at
// least two questions.
type Part7Set struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Part       int                `bson:"part" json:"part"`
	SetType    string             `bson:"setType" json:"setType"`
	Difficulty string             `bson:"difficulty" json:"difficulty"`
	Passages   []PassageChunk     `bson:"passages" json:"passages"`
	Questions  []SubQuestion      `bson:"questions" json:"questions"`
}
