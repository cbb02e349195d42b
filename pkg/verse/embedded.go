package verse

// embedded is the small, compiled-in verse set the spec requires (§1:
// "the service uses a small embedded set plus whatever the metadata store
// holds"). Seeded with well-known verses spanning a handful of books so
// theme extraction and daily rotation have varied material without a full
// bible text corpus, which is an explicit non-goal.
var embedded = []Entry{
	{Reference: "John 3:16", Book: "John", Chapter: 3, Verse: 16, Text: "For God so loved the world that he gave his one and only Son, that whoever believes in him shall not perish but have eternal life.", Translation: "WEB"},
	{Reference: "Psalm 23:1", Book: "Psalm", Chapter: 23, Verse: 1, Text: "The LORD is my shepherd; I shall not want.", Translation: "WEB"},
	{Reference: "Philippians 4:13", Book: "Philippians", Chapter: 4, Verse: 13, Text: "I can do all things through Christ who strengthens me.", Translation: "WEB"},
	{Reference: "Proverbs 3:5", Book: "Proverbs", Chapter: 3, Verse: 5, Text: "Trust in the LORD with all your heart, and lean not on your own understanding.", Translation: "WEB"},
	{Reference: "Isaiah 41:10", Book: "Isaiah", Chapter: 41, Verse: 10, Text: "Fear not, for I am with you; be not dismayed, for I am your God; I will strengthen you, I will help you.", Translation: "WEB"},
	{Reference: "Romans 8:28", Book: "Romans", Chapter: 8, Verse: 28, Text: "And we know that all things work together for good to those who love God, to those who are called according to his purpose.", Translation: "WEB"},
	{Reference: "Jeremiah 29:11", Book: "Jeremiah", Chapter: 29, Verse: 11, Text: "For I know the plans I have for you, plans of peace and not of evil, to give you hope and a future.", Translation: "WEB"},
	{Reference: "Matthew 11:28", Book: "Matthew", Chapter: 11, Verse: 28, Text: "Come to me, all you who labor and are heavy burdened, and I will give you rest.", Translation: "WEB"},
	{Reference: "Joshua 1:9", Book: "Joshua", Chapter: 1, Verse: 9, Text: "Have I not commanded you? Be strong and of good courage; do not be afraid, for the LORD your God is with you wherever you go.", Translation: "WEB"},
	{Reference: "1 Corinthians 13:4", Book: "1 Corinthians", Chapter: 13, Verse: 4, Text: "Love is patient and is kind; love does not envy. Love does not brag, is not proud.", Translation: "WEB"},
	{Reference: "Psalm 46:1", Book: "Psalm", Chapter: 46, Verse: 1, Text: "God is our refuge and strength, a very present help in trouble.", Translation: "WEB"},
	{Reference: "Galatians 5:22", Book: "Galatians", Chapter: 5, Verse: 22, Text: "But the fruit of the Spirit is love, joy, peace, patience, kindness, goodness, faithfulness.", Translation: "WEB"},
}
