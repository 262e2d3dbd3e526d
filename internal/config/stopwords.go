package config

// DefaultStopwords returns the built-in stopword list used when a deployment
// does not supply its own. It covers the Turkish and English query words the
// product's users actually type ("X hakkında bilgi", "what is Y", ...).
// Matching is performed on locale-lowercased text, so entries are lowercase.
func DefaultStopwords() []string {
	return []string{
		// Turkish question/filler words
		"acaba", "ama", "ancak", "bana", "bazı", "belki", "ben", "bilgi",
		"bir", "biraz", "bize", "bu", "bunun", "da", "daha", "de", "değil",
		"eğer", "en", "gibi", "hakkında", "hangi", "hep", "her", "hiç",
		"için", "ile", "ilgili", "ise", "kaç", "kadar", "kim", "kimdir",
		"ki", "mi", "mu", "mü", "mı", "nasıl", "ne", "neden", "nedir",
		"nerede", "niye", "o", "olan", "olarak", "şey", "şu", "sen", "siz",
		"sana", "var", "ve", "veya", "ya", "yani",
		// English question/filler words
		"a", "about", "an", "and", "any", "are", "as", "at", "be", "but",
		"by", "can", "do", "does", "for", "from", "give", "has", "have",
		"how", "in", "information", "is", "it", "me", "of", "on", "or",
		"please", "show", "tell", "that", "the", "this", "to", "was",
		"what", "when", "where", "which", "who", "whose", "why", "will",
		"with", "you",
	}
}
